package domain

import "time"

// LineItem: позиция корзины. Цена в минимальных единицах валюты.
type LineItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Size           string `json:"size,omitempty"`
	Color          string `json:"color,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

// Cart: снимок корзины, с которым работает оформление.
type Cart struct {
	ID            string     `json:"id"`
	Items         []LineItem `json:"items"`
	SubtotalMinor int64      `json:"subtotal_minor"`
}

// Empty сообщает, что в корзине нет товаров.
func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// Equal сравнивает содержимое корзин позиция за позицией.
func (c Cart) Equal(other Cart) bool {
	if c.ID != other.ID || c.SubtotalMinor != other.SubtotalMinor || len(c.Items) != len(other.Items) {
		return false
	}
	for i := range c.Items {
		if c.Items[i] != other.Items[i] {
			return false
		}
	}
	return true
}

// ValidateInvariants проверяет согласованность позиций и суммы.
func (c Cart) ValidateInvariants() []error {
	var errs []error
	if len(c.Items) == 0 {
		errs = append(errs, ErrCartEmpty)
	}
	var calc int64
	for _, item := range c.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Quantity) * item.UnitPriceMinor
	}
	if calc != c.SubtotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}
	return errs
}

// PaymentRequest: платёжная часть заказа. Card передаётся только для оплаты картой.
type PaymentRequest struct {
	Method PaymentMethod `json:"method"`
	Card   *CardDetails  `json:"card,omitempty"`
}

// OrderRequest: то, что уходит в сервис заказов при финализации.
type OrderRequest struct {
	CheckoutID      string         `json:"checkout_id"`
	IdempotencyKey  string         `json:"-"`
	CustomerID      string         `json:"customer_id"`
	CartID          string         `json:"cart_id"`
	Recipient       Recipient      `json:"recipient"`
	Address         Address        `json:"address"`
	ShippingQuoteID string         `json:"shipping_quote_id"`
	Payment         PaymentRequest `json:"payment"`
	Items           []LineItem     `json:"items"`
	SubtotalMinor   int64          `json:"subtotal_minor"`
	ShippingMinor   int64          `json:"shipping_minor"`
}

// InstantTransfer содержит данные для оплаты переводом, копируемый код и срок действия.
type InstantTransfer struct {
	Code      string    `json:"code"`
	QRCodeURL string    `json:"qr_code_url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OrderResult: ответ сервиса заказов.
type OrderResult struct {
	OrderID         string           `json:"order_id"`
	OrderNumber     string           `json:"order_number"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	InstantTransfer *InstantTransfer `json:"instant_transfer,omitempty"`
	PlacedAt        time.Time        `json:"placed_at"`
}

// ShippingQuoteRequest: входные данные расчёта доставки.
type ShippingQuoteRequest struct {
	PostalCode    string     `json:"postal_code"`
	Items         []LineItem `json:"items"`
	SubtotalMinor int64      `json:"subtotal_minor"`
}
