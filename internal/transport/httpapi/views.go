package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/checkout/internal/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/validation"
)

// Представления для фронтенда. Полный номер карты и CVV сюда не попадают никогда.

type checkoutView struct {
	ID             string             `json:"id"`
	Step           domain.Step        `json:"step"`
	StepIndex      int                `json:"step_index"`
	Steps          []domain.Step      `json:"steps"`
	BuyerView      checkout.BuyerView `json:"buyer_view"`
	Buyer          *buyerView         `json:"buyer,omitempty"`
	SavedAddresses []savedAddressView `json:"saved_addresses,omitempty"`
	Delivery       deliveryView       `json:"delivery"`
	Payment        paymentView        `json:"payment"`
	Cart           cartView           `json:"cart"`
	Submitting     bool               `json:"submitting"`
	Order          *orderView         `json:"order,omitempty"`
	Version        int64              `json:"version"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type buyerView struct {
	CustomerID string `json:"customer_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	TaxID      string `json:"tax_id,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
}

type addressView struct {
	PostalCode string `json:"postal_code"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	Region     string `json:"region"`
}

type savedAddressView struct {
	ID        string      `json:"id"`
	Label     string      `json:"label,omitempty"`
	IsDefault bool        `json:"is_default,omitempty"`
	Address   addressView `json:"address"`
}

type requestView struct {
	Status domain.RequestStatus `json:"status"`
	Error  string               `json:"error,omitempty"`
}

type quoteView struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Cost        string `json:"cost"`
	IsFree      bool   `json:"is_free"`
	EtaDaysMin  int    `json:"eta_days_min,omitempty"`
	EtaDaysMax  int    `json:"eta_days_max,omitempty"`
}

type quotesView struct {
	requestView
	Items []quoteView `json:"items"`
}

type deliveryView struct {
	RecipientSameAsBuyer   bool             `json:"recipient_same_as_buyer"`
	Recipient              domain.Recipient `json:"recipient"`
	Address                addressView      `json:"address"`
	AddressReadOnly        bool             `json:"address_read_only"`
	SelectedSavedAddressID string           `json:"selected_saved_address_id,omitempty"`
	SaveAddress            bool             `json:"save_address"`
	Lookup                 requestView      `json:"lookup"`
	Quotes                 quotesView       `json:"quotes"`
	SelectedQuoteID        string           `json:"selected_quote_id,omitempty"`
}

type cardView struct {
	Brand        domain.CardBrand `json:"brand,omitempty"`
	Last4        string           `json:"last4,omitempty"`
	MaskedNumber string           `json:"masked_number,omitempty"`
	HolderName   string           `json:"holder_name"`
	Expiry       string           `json:"expiry"`
	HolderTaxID  string           `json:"holder_tax_id"`
}

type instantTransferInfo struct {
	ReservationMinutes int `json:"reservation_minutes"`
	HoldHours          int `json:"hold_hours"`
}

type paymentView struct {
	Method          domain.PaymentMethod `json:"method,omitempty"`
	Card            *cardView            `json:"card,omitempty"`
	InstantTransfer *instantTransferInfo `json:"instant_transfer,omitempty"`
}

type lineItemView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
}

type cartView struct {
	ID       string         `json:"id"`
	Items    []lineItemView `json:"items"`
	Subtotal string         `json:"subtotal"`
	Shipping string         `json:"shipping"`
	Total    string         `json:"total"`
}

type orderView struct {
	OrderID         string                  `json:"order_id"`
	OrderNumber     string                  `json:"order_number"`
	PaymentStatus   domain.PaymentStatus    `json:"payment_status"`
	PlacedAt        time.Time               `json:"placed_at"`
	InstantTransfer *domain.InstantTransfer `json:"instant_transfer,omitempty"`
}

type timelineView struct {
	Events []domain.TimelineEvent `json:"events"`
}

type orderStatusView struct {
	OrderID       string               `json:"order_id"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
}

// money форматирует центавос как "123.45".
func money(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func newAddressView(a domain.Address) addressView {
	return addressView{
		PostalCode: validation.FormatPostalCode(a.PostalCode),
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		City:       a.City,
		Region:     a.Region,
	}
}

func newCheckoutView(c domain.Checkout) checkoutView {
	view := checkoutView{
		ID:         c.ID,
		Step:       c.Step,
		StepIndex:  c.Step.Index(),
		Steps:      domain.Steps,
		BuyerView:  checkout.BuyerViewOf(c),
		Delivery:   newDeliveryView(c.Delivery),
		Payment:    newPaymentView(c.Payment),
		Cart:       newCartView(c),
		Submitting: c.Submitting,
		Version:    c.Version,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}

	if b := c.Buyer; b != nil {
		view.Buyer = &buyerView{
			CustomerID: b.CustomerID,
			FirstName:  b.FirstName,
			LastName:   b.LastName,
			Email:      b.Email,
			Phone:      b.Phone,
			TaxID:      validation.FormatCPF(b.TaxID),
			BirthDate:  b.BirthDate,
		}
	}
	for _, sa := range c.SavedAddresses {
		view.SavedAddresses = append(view.SavedAddresses, savedAddressView{
			ID:        sa.ID,
			Label:     sa.Label,
			IsDefault: sa.IsDefault,
			Address:   newAddressView(sa.Address),
		})
	}
	if r := c.OrderResult; r != nil {
		view.Order = &orderView{
			OrderID:         r.OrderID,
			OrderNumber:     r.OrderNumber,
			PaymentStatus:   r.PaymentStatus,
			PlacedAt:        r.PlacedAt,
			InstantTransfer: r.InstantTransfer,
		}
	}
	return view
}

func newDeliveryView(d domain.Delivery) deliveryView {
	quotes := quotesView{
		requestView: requestView{Status: d.Quotes.Status, Error: d.Quotes.Error},
		Items:       make([]quoteView, 0, len(d.Quotes.Items)),
	}
	for _, q := range d.Quotes.Items {
		quotes.Items = append(quotes.Items, quoteView{
			ID:          q.ID,
			Label:       q.Label,
			Description: q.Description,
			Cost:        money(q.CostMinor),
			IsFree:      q.IsFree,
			EtaDaysMin:  q.EtaDaysMin,
			EtaDaysMax:  q.EtaDaysMax,
		})
	}

	return deliveryView{
		RecipientSameAsBuyer:   d.RecipientSameAsBuyer,
		Recipient:              d.Recipient,
		Address:                newAddressView(d.Address),
		AddressReadOnly:        d.UsingSavedAddress(),
		SelectedSavedAddressID: d.SelectedSavedAddressID,
		SaveAddress:            d.SaveAddress,
		Lookup:                 requestView{Status: d.Lookup.Status, Error: d.Lookup.Error},
		Quotes:                 quotes,
		SelectedQuoteID:        d.SelectedQuoteID,
	}
}

func newPaymentView(p domain.Payment) paymentView {
	view := paymentView{Method: p.Method}
	switch p.Method {
	case domain.PaymentMethodInstantTransfer:
		view.InstantTransfer = &instantTransferInfo{
			ReservationMinutes: int(domain.InstantTransferWindow / time.Minute),
			HoldHours:          int(domain.InstantTransferHold / time.Hour),
		}
	case domain.PaymentMethodCard:
		if card := p.Card; card != nil {
			view.Card = &cardView{
				Brand:        card.Brand,
				Last4:        card.Last4,
				MaskedNumber: validation.MaskCardNumber(card.Last4),
				HolderName:   card.HolderName,
				Expiry:       card.Expiry,
				HolderTaxID:  validation.FormatCPF(card.HolderTaxID),
			}
		}
	}
	return view
}

func newCartView(c domain.Checkout) cartView {
	var shipping int64
	// После оформления корзина пуста, доставка к ней уже не относится.
	if q := c.Delivery.SelectedQuote; q != nil && !c.Completed() {
		shipping = q.CostMinor
	}

	view := cartView{
		ID:       c.Cart.ID,
		Items:    make([]lineItemView, 0, len(c.Cart.Items)),
		Subtotal: money(c.Cart.SubtotalMinor),
		Shipping: money(shipping),
		Total:    money(c.Cart.SubtotalMinor + shipping),
	}
	for _, item := range c.Cart.Items {
		view.Items = append(view.Items, lineItemView{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			Color:     item.Color,
			Quantity:  item.Quantity,
			UnitPrice: money(item.UnitPriceMinor),
			Total:     money(int64(item.Quantity) * item.UnitPriceMinor),
		})
	}
	return view
}
