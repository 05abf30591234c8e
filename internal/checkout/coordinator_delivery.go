package checkout

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// SetRecipientSameAsBuyer включает или выключает вывод получателя из покупателя.
func (c *Coordinator) SetRecipientSameAsBuyer(ctx context.Context, id string, value bool) (domain.Checkout, error) {
	return c.dispatch(ctx, id, SetRecipientSameAsBuyer{Value: value})
}

// SetRecipient задаёт получателя вручную.
func (c *Coordinator) SetRecipient(ctx context.Context, id string, r domain.Recipient) (domain.Checkout, error) {
	return c.dispatch(ctx, id, SetRecipient{Recipient: r})
}

// EditAddress редактирует поля формы адреса.
func (c *Coordinator) EditAddress(ctx context.Context, id string, patch domain.AddressPatch) (domain.Checkout, error) {
	return c.dispatch(ctx, id, EditAddress{Patch: patch})
}

// SetSaveAddress включает сохранение нового адреса в профиль после заказа.
func (c *Coordinator) SetSaveAddress(ctx context.Context, id string, value bool) (domain.Checkout, error) {
	return c.dispatch(ctx, id, SetSaveAddress{Value: value})
}

// SelectShippingQuote выбирает тариф из текущего списка.
func (c *Coordinator) SelectShippingQuote(ctx context.Context, id, quoteID string) (domain.Checkout, error) {
	return c.dispatch(ctx, id, SelectShippingQuote{ID: quoteID})
}

// ClearSavedAddress снимает выбор сохранённого адреса; форма становится пустой и редактируемой.
func (c *Coordinator) ClearSavedAddress(ctx context.Context, id string) (domain.Checkout, error) {
	return c.dispatch(ctx, id, ClearSavedAddress{})
}

// SelectSavedAddress подставляет сохранённый адрес и пересчитывает доставку при смене индекса.
func (c *Coordinator) SelectSavedAddress(ctx context.Context, id, addressID string) (domain.Checkout, error) {
	next, err := c.dispatch(ctx, id, SelectSavedAddress{ID: addressID})
	if err != nil {
		return next, err
	}
	return c.runDeliveryRequests(ctx, next)
}

// SetPostalCode меняет индекс. На 8-й цифре параллельно запускаются справочник и расчёт доставки;
// их ответы применяются, только если за это время не был выдан более новый запрос.
func (c *Coordinator) SetPostalCode(ctx context.Context, id, postalCode string) (domain.Checkout, error) {
	next, err := c.dispatch(ctx, id, SetPostalCode{PostalCode: postalCode})
	if err != nil {
		return next, err
	}
	return c.runDeliveryRequests(ctx, next)
}

// RefreshCart перечитывает корзину; изменившаяся корзина сбрасывает тарифы.
func (c *Coordinator) RefreshCart(ctx context.Context, id string) (domain.Checkout, error) {
	cur, err := c.checkouts.Get(ctx, id)
	if err != nil {
		return domain.Checkout{}, err
	}
	cart, err := c.fetchCart(ctx, cur.Cart.ID)
	if err != nil {
		return cur, err
	}
	next, err := c.dispatch(ctx, id, CartChanged{Cart: cart})
	if err != nil {
		return next, err
	}
	if !cur.Cart.Equal(next.Cart) {
		c.appendTimeline(ctx, id, domain.TimelineCartRefreshed, next.Step, "")
	}
	return c.runDeliveryRequests(ctx, next)
}

// refreshDelivery перевыпускает запросы при возврате на шаг доставки, если прошлые ответы потеряны.
func (c *Coordinator) refreshDelivery(ctx context.Context, cur domain.Checkout) (domain.Checkout, error) {
	if !needsLookup(&cur) && !needsQuotes(&cur) {
		return cur, nil
	}
	next, err := c.dispatch(ctx, cur.ID, DeliveryRefreshRequested{Lookup: true, Quotes: true})
	if err != nil {
		return cur, err
	}
	return c.runDeliveryRequests(ctx, next)
}

// runDeliveryRequests выполняет запросы, отмеченные в состоянии как loading, и применяет ответы.
// Без справочника или калькулятора доставки запрос сразу завершается ошибкой.
func (c *Coordinator) runDeliveryRequests(ctx context.Context, st domain.Checkout) (domain.Checkout, error) {
	d := st.Delivery
	doLookup := d.Lookup.Status == domain.RequestLoading
	doQuotes := d.Quotes.Status == domain.RequestLoading
	if !doLookup && !doQuotes {
		return st, nil
	}

	postalCode := d.Address.PostalCode
	var lookupResult, quoteResult Action

	var g errgroup.Group
	if doLookup {
		seq := d.Lookup.Seq
		if c.postalCodes == nil {
			lookupResult = PostalCodeFailed{Seq: seq, Message: domain.DisplayMessage(domain.ErrCollaboratorUnavailable)}
		} else {
			g.Go(func() error {
				start := time.Now()
				res, err := c.postalCodes.Lookup(ctx, postalCode)
				c.observe("lookupPostalCode", start, err)
				if err != nil {
					lookupResult = PostalCodeFailed{Seq: seq, Message: domain.DisplayMessage(err)}
					return nil
				}
				lookupResult = PostalCodeResolved{Seq: seq, Result: res}
				return nil
			})
		}
	}
	if doQuotes {
		seq := d.Quotes.Seq
		req := domain.ShippingQuoteRequest{
			PostalCode:    postalCode,
			Items:         st.Cart.Items,
			SubtotalMinor: st.Cart.SubtotalMinor,
		}
		if c.shipping == nil {
			quoteResult = QuotesFailed{Seq: seq, Message: domain.DisplayMessage(domain.ErrCollaboratorUnavailable)}
		} else {
			g.Go(func() error {
				start := time.Now()
				quotes, err := c.shipping.Quote(ctx, req)
				c.observe("quoteShipping", start, err)
				if err != nil {
					quoteResult = QuotesFailed{Seq: seq, Message: domain.DisplayMessage(err)}
					return nil
				}
				quoteResult = QuotesResolved{Seq: seq, Quotes: quotes}
				return nil
			})
		}
	}
	_ = g.Wait()

	// Ответы сохраняются, даже если клиент уже отключился.
	applyCtx := context.WithoutCancel(ctx)
	for _, result := range []Action{lookupResult, quoteResult} {
		if result == nil {
			continue
		}
		if _, err := c.dispatch(applyCtx, st.ID, result); err != nil && !errors.Is(err, domain.ErrStaleResponse) {
			c.logger.WithError(err).WithFields(log.Fields{
				"checkout_id": st.ID,
				"action":      result.Name(),
			}).Warn("apply delivery response failed")
			return c.checkouts.Get(applyCtx, st.ID)
		}
	}
	return c.checkouts.Get(applyCtx, st.ID)
}

// SelectPaymentMethod переключает способ оплаты; данные карты при этом сбрасываются.
func (c *Coordinator) SelectPaymentMethod(ctx context.Context, id string, method domain.PaymentMethod) (domain.Checkout, error) {
	return c.dispatch(ctx, id, SelectPaymentMethod{Method: method})
}

// UpdateCard применяет ввод полей карты.
func (c *Coordinator) UpdateCard(ctx context.Context, id string, patch domain.CardPatch) (domain.Checkout, error) {
	return c.dispatch(ctx, id, UpdateCard{Patch: patch})
}

func (c *Coordinator) fetchCart(ctx context.Context, cartID string) (domain.Cart, error) {
	start := time.Now()
	cart, err := c.carts.GetCart(ctx, cartID)
	c.observe("getCart", start, err)
	if err != nil {
		return domain.Cart{}, err
	}
	if cart.ID == "" {
		cart.ID = cartID
	}
	return cart, nil
}
