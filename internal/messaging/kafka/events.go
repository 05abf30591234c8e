package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	EventTypeOrderPlaced      EventType = "checkout.order_placed"
	EventTypeSubmissionFailed EventType = "checkout.submission_failed"
)

// AggregateCheckout: тип агрегата в outbox.
const AggregateCheckout = "checkout"

// TopicCheckoutEvents: topic по умолчанию.
const TopicCheckoutEvents = "checkout.events"

// OrderPlacedEvent уходит в Kafka после успешного createOrder.
// Данные карты в событие не попадают.
type OrderPlacedEvent struct {
	EventType       EventType            `json:"event_type"`
	CheckoutID      string               `json:"checkout_id"`
	OrderID         string               `json:"order_id"`
	OrderNumber     string               `json:"order_number"`
	CustomerID      string               `json:"customer_id"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status"`
	ShippingQuoteID string               `json:"shipping_quote_id"`
	SubtotalMinor   int64                `json:"subtotal_minor"`
	ShippingMinor   int64                `json:"shipping_minor"`
	ItemCount       int                  `json:"item_count"`
	Timestamp       time.Time            `json:"timestamp"`
}

// SubmissionFailedEvent фиксирует отказ сервиса заказов.
type SubmissionFailedEvent struct {
	EventType  EventType `json:"event_type"`
	CheckoutID string    `json:"checkout_id"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewOrderPlacedEvent собирает событие из запроса и ответа сервиса заказов.
func NewOrderPlacedEvent(req domain.OrderRequest, res domain.OrderResult) *OrderPlacedEvent {
	items := 0
	for _, item := range req.Items {
		items += item.Quantity
	}
	return &OrderPlacedEvent{
		EventType:       EventTypeOrderPlaced,
		CheckoutID:      req.CheckoutID,
		OrderID:         res.OrderID,
		OrderNumber:     res.OrderNumber,
		CustomerID:      req.CustomerID,
		PaymentMethod:   req.Payment.Method,
		PaymentStatus:   res.PaymentStatus,
		ShippingQuoteID: req.ShippingQuoteID,
		SubtotalMinor:   req.SubtotalMinor,
		ShippingMinor:   req.ShippingMinor,
		ItemCount:       items,
		Timestamp:       res.PlacedAt,
	}
}

// NewSubmissionFailedEvent создаёт событие неудачной отправки.
func NewSubmissionFailedEvent(checkoutID, reason string, at time.Time) *SubmissionFailedEvent {
	return &SubmissionFailedEvent{
		EventType:  EventTypeSubmissionFailed,
		CheckoutID: checkoutID,
		Reason:     reason,
		Timestamp:  at.UTC(),
	}
}
