package checkout

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// IdempotencyKey возвращает ключ createOrder, с ним повтор после сбоя не создаст второй заказ.
func IdempotencyKey(checkoutID string) string {
	return "checkout-" + checkoutID
}

// Finalize отправляет заказ. Флаг Submitting, сохранённый с optimistic locking,
// гарантирует, что параллельные нажатия не вызовут createOrder дважды.
func (c *Coordinator) Finalize(ctx context.Context, id string) (domain.Checkout, error) {
	started, err := c.dispatch(ctx, id, SubmissionStarted{})
	if err != nil {
		return started, err
	}
	req := BuildOrderRequest(started)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.submitTimeout)
	defer cancel()

	start := time.Now()
	result, err := c.orders.CreateOrder(callCtx, req)
	c.observe("createOrder", start, err)
	if err != nil {
		return c.submissionFailed(callCtx, started, err)
	}

	placed, err := c.dispatch(callCtx, id, OrderPlaced{Result: result})
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"checkout_id": id,
			"order_id":    result.OrderID,
		}).Error("order created but checkout state not persisted")
		return started, err
	}

	c.afterOrderPlaced(callCtx, started, placed, req)
	return placed, nil
}

func (c *Coordinator) submissionFailed(ctx context.Context, started domain.Checkout, cause error) (domain.Checkout, error) {
	reason := domain.DisplayMessage(cause)
	c.logger.WithError(cause).WithField("checkout_id", started.ID).Warn("create order failed")

	failed, err := c.dispatch(ctx, started.ID, SubmissionFailed{Reason: reason})
	if err != nil {
		c.logger.WithError(err).WithField("checkout_id", started.ID).Error("failed to reset submission flag")
		failed = started
	}
	c.appendTimeline(ctx, started.ID, domain.TimelineSubmissionFailed, started.Step, reason)
	c.enqueueEvent(ctx, started.ID, kafka.EventTypeSubmissionFailed, kafka.NewSubmissionFailedEvent(started.ID, reason, c.now()))
	return failed, cause
}

// afterOrderPlaced выполняет побочные эффекты. Их сбой не отменяет заказ.
func (c *Coordinator) afterOrderPlaced(ctx context.Context, before, placed domain.Checkout, req domain.OrderRequest) {
	entry := c.logger.WithFields(log.Fields{
		"checkout_id": placed.ID,
		"order_id":    placed.OrderResult.OrderID,
	})

	start := time.Now()
	err := c.carts.ClearCart(ctx, before.Cart.ID)
	c.observe("clearCart", start, err)
	if err != nil {
		entry.WithError(err).Warn("clear cart failed")
	}

	if before.Authenticated() && before.Delivery.SaveAddress && !before.Delivery.UsingSavedAddress() && c.addresses != nil {
		start := time.Now()
		_, err := c.addresses.SaveAddress(ctx, before.Delivery.Address)
		c.observe("saveAddress", start, err)
		if err != nil {
			entry.WithError(err).Warn("save address failed")
		}
	}

	c.enqueueEvent(ctx, placed.ID, kafka.EventTypeOrderPlaced, kafka.NewOrderPlacedEvent(req, *placed.OrderResult))
	c.appendTimeline(ctx, placed.ID, domain.TimelineOrderPlaced, placed.Step, string(placed.OrderResult.PaymentStatus))
	if c.metrics != nil {
		c.metrics.RecordOrderPlaced(string(req.Payment.Method), string(placed.OrderResult.PaymentStatus))
	}
	entry.WithFields(log.Fields{
		"payment_method": req.Payment.Method,
		"payment_status": placed.OrderResult.PaymentStatus,
	}).Info("order placed")
}

func (c *Coordinator) enqueueEvent(ctx context.Context, checkoutID string, eventType kafka.EventType, event any) {
	if c.outbox == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: kafka.AggregateCheckout,
		AggregateID:   checkoutID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := c.outbox.Enqueue(ctx, msg); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"checkout_id": checkoutID,
			"event":       eventType,
		}).Error("enqueue event failed")
	}
}

// BuildOrderRequest собирает тело createOrder из состояния сессии.
func BuildOrderRequest(st domain.Checkout) domain.OrderRequest {
	req := domain.OrderRequest{
		CheckoutID:      st.ID,
		IdempotencyKey:  IdempotencyKey(st.ID),
		CartID:          st.Cart.ID,
		Recipient:       st.Delivery.Recipient,
		Address:         st.Delivery.Address,
		ShippingQuoteID: st.Delivery.SelectedQuoteID,
		Payment:         domain.PaymentRequest{Method: st.Payment.Method},
		Items:           append([]domain.LineItem(nil), st.Cart.Items...),
		SubtotalMinor:   st.Cart.SubtotalMinor,
	}
	if st.Buyer != nil {
		req.CustomerID = st.Buyer.CustomerID
	}
	if st.Delivery.SelectedQuote != nil {
		req.ShippingMinor = st.Delivery.SelectedQuote.CostMinor
	}
	if st.Payment.Method == domain.PaymentMethodCard && st.Payment.Card != nil {
		card := *st.Payment.Card
		req.Payment.Card = &card
	}
	return req
}

// OrderStatus опрашивает статус оплаты оформленного заказа.
func (c *Coordinator) OrderStatus(ctx context.Context, id string) (domain.PaymentStatus, error) {
	st, err := c.checkouts.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if st.OrderResult == nil {
		return "", domain.ErrOrderNotPlaced
	}
	start := time.Now()
	status, err := c.orders.GetPaymentStatus(ctx, st.OrderResult.OrderID)
	c.observe("getPaymentStatus", start, err)
	return status, err
}
