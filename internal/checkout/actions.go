package checkout

import "github.com/vladislavdragonenkov/checkout/internal/domain"

// Action: событие, которое редьюсер применяет к состоянию сессии.
type Action interface {
	// Name используется в метриках и логах.
	Name() string
}

// Навигация.
type (
	Advance struct{}
	Retreat struct{}
)

// Идентификация покупателя.
type (
	// ProfileLoaded: покупатель вошёл или зарегистрировался.
	ProfileLoaded struct {
		Buyer          domain.Buyer
		SavedAddresses []domain.SavedAddress
	}
	// ProfileCompleted: покупатель дописал недостающие поля профиля.
	ProfileCompleted struct {
		TaxID string
		Phone string
	}
)

// Доставка.
type (
	SetRecipientSameAsBuyer struct{ Value bool }
	SetRecipient            struct{ Recipient domain.Recipient }
	SelectSavedAddress      struct{ ID string }
	ClearSavedAddress       struct{}
	EditAddress             struct{ Patch domain.AddressPatch }
	SetPostalCode           struct{ PostalCode string }
	SetSaveAddress          struct{ Value bool }
	SelectShippingQuote     struct{ ID string }
	// CartChanged: снимок корзины обновился.
	CartChanged struct{ Cart domain.Cart }
	// DeliveryRefreshRequested перевыпускает запросы, результаты которых потеряны.
	DeliveryRefreshRequested struct {
		Lookup bool
		Quotes bool
	}
)

// Асинхронные результаты. Seq сверяется с номером последнего запроса.
type (
	PostalCodeResolved struct {
		Seq    uint64
		Result domain.PostalCodeResult
	}
	PostalCodeFailed struct {
		Seq     uint64
		Message string
	}
	QuotesResolved struct {
		Seq    uint64
		Quotes []domain.ShippingQuote
	}
	QuotesFailed struct {
		Seq     uint64
		Message string
	}
)

// Оплата.
type (
	SelectPaymentMethod struct{ Method domain.PaymentMethod }
	UpdateCard          struct{ Patch domain.CardPatch }
)

// Подтверждение.
type (
	SubmissionStarted struct{}
	SubmissionFailed  struct{ Reason string }
	OrderPlaced       struct{ Result domain.OrderResult }
)

func (Advance) Name() string                  { return "advance" }
func (Retreat) Name() string                  { return "retreat" }
func (ProfileLoaded) Name() string            { return "profile_loaded" }
func (ProfileCompleted) Name() string         { return "profile_completed" }
func (SetRecipientSameAsBuyer) Name() string  { return "set_recipient_same_as_buyer" }
func (SetRecipient) Name() string             { return "set_recipient" }
func (SelectSavedAddress) Name() string       { return "select_saved_address" }
func (ClearSavedAddress) Name() string        { return "clear_saved_address" }
func (EditAddress) Name() string              { return "edit_address" }
func (SetPostalCode) Name() string            { return "set_postal_code" }
func (SetSaveAddress) Name() string           { return "set_save_address" }
func (SelectShippingQuote) Name() string      { return "select_shipping_quote" }
func (CartChanged) Name() string              { return "cart_changed" }
func (DeliveryRefreshRequested) Name() string { return "delivery_refresh_requested" }
func (PostalCodeResolved) Name() string       { return "postal_code_resolved" }
func (PostalCodeFailed) Name() string         { return "postal_code_failed" }
func (QuotesResolved) Name() string           { return "quotes_resolved" }
func (QuotesFailed) Name() string             { return "quotes_failed" }
func (SelectPaymentMethod) Name() string      { return "select_payment_method" }
func (UpdateCard) Name() string               { return "update_card" }
func (SubmissionStarted) Name() string        { return "submission_started" }
func (SubmissionFailed) Name() string         { return "submission_failed" }
func (OrderPlaced) Name() string              { return "order_placed" }
