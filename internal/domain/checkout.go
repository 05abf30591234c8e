package domain

import (
	"errors"
	"time"
)

// Step: шаг мастера оформления.
type Step string

const (
	StepBuyerIdentity Step = "buyer_identity"
	StepDelivery      Step = "delivery"
	StepPayment       Step = "payment"
	StepConfirmation  Step = "confirmation"
)

// Steps: шаги в порядке прохождения.
var Steps = []Step{StepBuyerIdentity, StepDelivery, StepPayment, StepConfirmation}

// Index возвращает позицию шага или -1 для неизвестного.
func (s Step) Index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Next возвращает следующий шаг.
func (s Step) Next() (Step, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(Steps) {
		return s, false
	}
	return Steps[i+1], true
}

// Prev возвращает предыдущий шаг.
func (s Step) Prev() (Step, bool) {
	i := s.Index()
	if i <= 0 {
		return s, false
	}
	return Steps[i-1], true
}

// Checkout: агрегат сессии оформления заказа.
type Checkout struct {
	ID             string         `json:"id"`
	Step           Step           `json:"step"`
	Buyer          *Buyer         `json:"buyer,omitempty"`
	SavedAddresses []SavedAddress `json:"saved_addresses,omitempty"`
	Delivery       Delivery       `json:"delivery"`
	Payment        Payment        `json:"payment"`
	Cart           Cart           `json:"cart"`
	// Submitting выставляется на время вызова createOrder и защищает от повторной отправки.
	Submitting          bool         `json:"submitting"`
	SubmissionStartedAt time.Time    `json:"submission_started_at,omitempty"`
	OrderResult         *OrderResult `json:"order_result,omitempty"`
	// RequestSeq — монотонный счётчик асинхронных запросов сессии.
	RequestSeq uint64    `json:"request_seq"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Authenticated сообщает, что покупатель вошёл.
func (c *Checkout) Authenticated() bool {
	return c.Buyer != nil
}

// Completed сообщает, что заказ оформлен и сессия терминальна.
func (c *Checkout) Completed() bool {
	return c.OrderResult != nil
}

// NextSeq выдаёт номер для нового асинхронного запроса.
func (c *Checkout) NextSeq() uint64 {
	c.RequestSeq++
	return c.RequestSeq
}

// Clone делает глубокую копию, чтобы редьюсер не мутировал исходное состояние.
func (c Checkout) Clone() Checkout {
	out := c
	if c.Buyer != nil {
		b := *c.Buyer
		out.Buyer = &b
	}
	if c.SavedAddresses != nil {
		out.SavedAddresses = append([]SavedAddress(nil), c.SavedAddresses...)
	}
	if c.Delivery.Quotes.Items != nil {
		out.Delivery.Quotes.Items = append([]ShippingQuote(nil), c.Delivery.Quotes.Items...)
	}
	if c.Delivery.SelectedQuote != nil {
		q := *c.Delivery.SelectedQuote
		out.Delivery.SelectedQuote = &q
	}
	if c.Payment.Card != nil {
		card := *c.Payment.Card
		out.Payment.Card = &card
	}
	if c.Cart.Items != nil {
		out.Cart.Items = append([]LineItem(nil), c.Cart.Items...)
	}
	if c.OrderResult != nil {
		r := *c.OrderResult
		if r.InstantTransfer != nil {
			it := *r.InstantTransfer
			r.InstantTransfer = &it
		}
		out.OrderResult = &r
	}
	return out
}

// WithoutCardSecrets возвращает копию для хранилища: номер карты и CVV стёрты.
func (c Checkout) WithoutCardSecrets() Checkout {
	out := c.Clone()
	if out.Payment.Card != nil {
		out.Payment.Card.Scrub()
	}
	return out
}

var (
	errStepUnknown          = errors.New("checkout step is unknown")
	errRecipientNotDerived  = errors.New("recipient does not match the buyer")
	errQuoteSelectionBroken = errors.New("selected quote id and quote disagree")
	errCardWithoutMethod    = errors.New("card details present for a non-card method")
	errOrderWhileSubmitting = errors.New("order result present while submitting")
)

// ValidateInvariants проверяет структурные инварианты состояния и возвращает список замечаний.
func (c *Checkout) ValidateInvariants() []error {
	var errs []error

	if c.Step.Index() < 0 {
		errs = append(errs, errStepUnknown)
	}
	if c.Delivery.RecipientSameAsBuyer && c.Buyer != nil {
		if c.Delivery.Recipient.FullName != c.Buyer.FullName() || c.Delivery.Recipient.Phone != c.Buyer.Phone {
			errs = append(errs, errRecipientNotDerived)
		}
	}
	if (c.Delivery.SelectedQuoteID == "") != (c.Delivery.SelectedQuote == nil) {
		errs = append(errs, errQuoteSelectionBroken)
	}
	if c.Delivery.SelectedQuote != nil && c.Delivery.SelectedQuote.ID != c.Delivery.SelectedQuoteID {
		errs = append(errs, errQuoteSelectionBroken)
	}
	if c.Payment.Card != nil && c.Payment.Method != PaymentMethodCard {
		errs = append(errs, errCardWithoutMethod)
	}
	if c.Submitting && c.OrderResult != nil {
		errs = append(errs, errOrderWhileSubmitting)
	}
	return errs
}
