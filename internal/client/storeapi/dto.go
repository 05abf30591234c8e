package storeapi

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type customerDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	CPF       string `json:"cpf,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
}

func (c customerDTO) toDomain() domain.Buyer {
	return domain.Buyer{
		CustomerID: c.ID,
		FirstName:  c.FirstName,
		LastName:   c.LastName,
		Email:      c.Email,
		Phone:      c.Phone,
		TaxID:      c.CPF,
		BirthDate:  c.BirthDate,
	}
}

type authResponse struct {
	Token    string      `json:"token"`
	Customer customerDTO `json:"customer"`
}

type registerRequest struct {
	FirstName            string          `json:"first_name"`
	LastName             string          `json:"last_name"`
	Email                string          `json:"email"`
	Phone                string          `json:"phone,omitempty"`
	CPF                  string          `json:"cpf,omitempty"`
	BirthDate            string          `json:"birth_date"`
	Password             string          `json:"password"`
	PasswordConfirmation string          `json:"password_confirmation"`
	Consents             domain.Consents `json:"consents"`
}

type profilePatch struct {
	CPF   string `json:"cpf,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type addressDTO struct {
	ID         string `json:"id,omitempty"`
	Label      string `json:"label,omitempty"`
	IsDefault  bool   `json:"is_default,omitempty"`
	PostalCode string `json:"postal_code"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
}

func addressFromDomain(a domain.Address) addressDTO {
	return addressDTO{
		PostalCode: a.PostalCode,
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		City:       a.City,
		State:      a.Region,
	}
}

func (a addressDTO) toAddress() domain.Address {
	return domain.Address{
		PostalCode: a.PostalCode,
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		City:       a.City,
		Region:     a.State,
	}
}

func (a addressDTO) toDomain() domain.SavedAddress {
	return domain.SavedAddress{
		ID:        a.ID,
		Label:     a.Label,
		IsDefault: a.IsDefault,
		Address:   a.toAddress(),
	}
}

type addressesResponse struct {
	Addresses []addressDTO `json:"addresses"`
}

type lineItemDTO struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func itemsFromDomain(items []domain.LineItem) []lineItemDTO {
	out := make([]lineItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, lineItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			Color:     item.Color,
			Quantity:  item.Quantity,
			UnitPrice: fromMinor(item.UnitPriceMinor),
		})
	}
	return out
}

type cartResponse struct {
	ID       string          `json:"id"`
	Items    []lineItemDTO   `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func (c cartResponse) toDomain() domain.Cart {
	cart := domain.Cart{ID: c.ID, Items: make([]domain.LineItem, 0, len(c.Items)), SubtotalMinor: toMinor(c.Subtotal)}
	for _, item := range c.Items {
		cart.Items = append(cart.Items, domain.LineItem{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Size:           item.Size,
			Color:          item.Color,
			Quantity:       item.Quantity,
			UnitPriceMinor: toMinor(item.UnitPrice),
		})
	}
	return cart
}

type quoteRequest struct {
	PostalCode string          `json:"postal_code"`
	Items      []lineItemDTO   `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

type quoteDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	EtaDaysMin  int             `json:"eta_days_min,omitempty"`
	EtaDaysMax  int             `json:"eta_days_max,omitempty"`
}

func (q quoteDTO) toDomain() domain.ShippingQuote {
	cost := toMinor(q.Price)
	return domain.ShippingQuote{
		ID:          q.ID,
		Label:       q.Name,
		Description: q.Description,
		CostMinor:   cost,
		IsFree:      cost == 0,
		EtaDaysMin:  q.EtaDaysMin,
		EtaDaysMax:  q.EtaDaysMax,
	}
}

type quotesResponse struct {
	Quotes []quoteDTO `json:"quotes"`
}

type cardDTO struct {
	Number     string `json:"number"`
	HolderName string `json:"holder_name"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	HolderCPF  string `json:"holder_cpf"`
	Brand      string `json:"brand,omitempty"`
}

type paymentDTO struct {
	Method string   `json:"method"`
	Card   *cardDTO `json:"card,omitempty"`
}

type recipientDTO struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

type orderRequest struct {
	CheckoutID      string          `json:"checkout_id"`
	CustomerID      string          `json:"customer_id,omitempty"`
	CartID          string          `json:"cart_id"`
	Recipient       recipientDTO    `json:"recipient"`
	Address         addressDTO      `json:"address"`
	ShippingQuoteID string          `json:"shipping_quote_id"`
	Payment         paymentDTO      `json:"payment"`
	Items           []lineItemDTO   `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
}

func orderFromDomain(req domain.OrderRequest) orderRequest {
	payment := paymentDTO{Method: string(req.Payment.Method)}
	if card := req.Payment.Card; card != nil {
		payment.Card = &cardDTO{
			Number:     card.Number,
			HolderName: card.HolderName,
			Expiry:     card.Expiry,
			CVV:        card.CVV,
			HolderCPF:  card.HolderTaxID,
			Brand:      string(card.Brand),
		}
	}
	return orderRequest{
		CheckoutID:      req.CheckoutID,
		CustomerID:      req.CustomerID,
		CartID:          req.CartID,
		Recipient:       recipientDTO{FullName: req.Recipient.FullName, Phone: req.Recipient.Phone},
		Address:         addressFromDomain(req.Address),
		ShippingQuoteID: req.ShippingQuoteID,
		Payment:         payment,
		Items:           itemsFromDomain(req.Items),
		Subtotal:        fromMinor(req.SubtotalMinor),
		Shipping:        fromMinor(req.ShippingMinor),
		Total:           fromMinor(req.SubtotalMinor + req.ShippingMinor),
	}
}

type instantTransferDTO struct {
	Code      string    `json:"code"`
	QRCodeURL string    `json:"qr_code_url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	Number          string              `json:"number"`
	PaymentStatus   string              `json:"payment_status"`
	InstantTransfer *instantTransferDTO `json:"instant_transfer,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func (o orderResponse) toDomain() domain.OrderResult {
	result := domain.OrderResult{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		PaymentStatus: normalizeStatus(o.PaymentStatus),
		PlacedAt:      o.CreatedAt,
	}
	if o.InstantTransfer != nil {
		result.InstantTransfer = &domain.InstantTransfer{
			Code:      o.InstantTransfer.Code,
			QRCodeURL: o.InstantTransfer.QRCodeURL,
			ExpiresAt: o.InstantTransfer.ExpiresAt,
		}
	}
	return result
}

func normalizeStatus(raw string) domain.PaymentStatus {
	return domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

type paymentStatusResponse struct {
	Status string `json:"status"`
}
