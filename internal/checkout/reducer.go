// Package checkout содержит конечный автомат оформления заказа и координатор внешних вызовов.
package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/validation"
)

// DefaultSubmissionTTL: через сколько зависшая отправка заказа может быть начата заново.
const DefaultSubmissionTTL = 2 * time.Minute

// Reducer задаёт чистую функцию перехода (состояние, действие, время) -> новое состояние.
// Исходное состояние никогда не изменяется; при ошибке возвращается оно же.
type Reducer struct {
	validator     *validation.Validator
	submissionTTL time.Duration
}

// NewReducer создаёт редьюсер. nil-валидатор заменяется стандартным.
func NewReducer(v *validation.Validator) *Reducer {
	if v == nil {
		v = validation.New()
	}
	return &Reducer{validator: v, submissionTTL: DefaultSubmissionTTL}
}

// Reduce применяет действие к копии состояния.
func (r *Reducer) Reduce(cur domain.Checkout, action Action, now time.Time) (domain.Checkout, error) {
	if cur.Completed() {
		if isAsyncResult(action) {
			return cur, domain.ErrStaleResponse
		}
		return cur, domain.ErrCheckoutCompleted
	}
	if cur.Submitting && !allowedWhileSubmitting(action) {
		if isAsyncResult(action) {
			return cur, domain.ErrStaleResponse
		}
		return cur, domain.ErrSubmissionInProgress
	}

	next := cur.Clone()
	var err error

	switch a := action.(type) {
	case Advance:
		err = r.advance(&next, now)
	case Retreat:
		err = retreat(&next)

	case ProfileLoaded:
		err = profileLoaded(&next, a)
	case ProfileCompleted:
		err = profileCompleted(&next, a)

	case SetRecipientSameAsBuyer:
		err = setRecipientSameAsBuyer(&next, a)
	case SetRecipient:
		err = setRecipient(&next, a)
	case SelectSavedAddress:
		err = selectSavedAddress(&next, a)
	case ClearSavedAddress:
		err = clearSavedAddress(&next)
	case EditAddress:
		err = editAddress(&next, a)
	case SetPostalCode:
		err = setPostalCode(&next, a)
	case SetSaveAddress:
		err = setSaveAddress(&next, a)
	case SelectShippingQuote:
		err = selectShippingQuote(&next, a)
	case CartChanged:
		err = cartChanged(&next, a)
	case DeliveryRefreshRequested:
		err = deliveryRefreshRequested(&next, a)
	case PostalCodeResolved:
		err = postalCodeResolved(&next, a)
	case PostalCodeFailed:
		err = postalCodeFailed(&next, a)
	case QuotesResolved:
		err = quotesResolved(&next, a)
	case QuotesFailed:
		err = quotesFailed(&next, a)

	case SelectPaymentMethod:
		err = selectPaymentMethod(&next, a)
	case UpdateCard:
		err = updateCard(&next, a)

	case SubmissionStarted:
		err = r.submissionStarted(&next, now)
	case SubmissionFailed:
		err = submissionFailed(&next)
	case OrderPlaced:
		err = orderPlaced(&next, a, now)

	default:
		return cur, fmt.Errorf("unknown action %T", action)
	}

	if err != nil {
		return cur, err
	}
	next.UpdatedAt = now
	return next, nil
}

func isAsyncResult(action Action) bool {
	switch action.(type) {
	case PostalCodeResolved, PostalCodeFailed, QuotesResolved, QuotesFailed:
		return true
	default:
		return false
	}
}

func allowedWhileSubmitting(action Action) bool {
	switch action.(type) {
	case SubmissionStarted, SubmissionFailed, OrderPlaced:
		return true
	default:
		return false
	}
}

func requireStep(c *domain.Checkout, step domain.Step) error {
	if c.Step != step {
		return fmt.Errorf("%w: expected %s, current %s", domain.ErrStepMismatch, step, c.Step)
	}
	return nil
}

func (r *Reducer) advance(c *domain.Checkout, now time.Time) error {
	next, ok := c.Step.Next()
	if !ok {
		return domain.ErrNoNextStep
	}
	if verr := r.validateStep(c, c.Step, now); !verr.Empty() {
		return verr
	}
	c.Step = next
	return nil
}

func retreat(c *domain.Checkout) error {
	prev, ok := c.Step.Prev()
	if !ok {
		return domain.ErrFirstStep
	}
	c.Step = prev
	return nil
}

// Validate возвращает ошибки полей текущего шага, не меняя состояние.
func (r *Reducer) Validate(c domain.Checkout, now time.Time) *domain.ValidationError {
	return r.validateStep(&c, c.Step, now)
}

func (r *Reducer) validateStep(c *domain.Checkout, step domain.Step, now time.Time) *domain.ValidationError {
	switch step {
	case domain.StepBuyerIdentity:
		return validateIdentity(c)
	case domain.StepDelivery:
		return validateDelivery(c)
	case domain.StepPayment:
		return r.validatePayment(c, now)
	default:
		return nil
	}
}

func validateIdentity(c *domain.Checkout) *domain.ValidationError {
	verr := domain.NewValidationError()
	if !c.Authenticated() {
		verr.Add("buyer", "sign in or register to continue")
		return verr
	}
	for _, field := range c.Buyer.MissingFields() {
		verr.Add("buyer."+string(field), "is required")
	}
	return verr
}

func validateDelivery(c *domain.Checkout) *domain.ValidationError {
	verr := domain.NewValidationError()
	d := c.Delivery

	if strings.TrimSpace(d.Recipient.FullName) == "" {
		verr.Add("recipient.full_name", "is required")
	}
	if strings.TrimSpace(d.Recipient.Phone) == "" {
		verr.Add("recipient.phone", "is required")
	}

	switch {
	case d.Address.PostalCode == "":
		verr.Add("address.postal_code", "is required")
	case !d.Address.PostalCodeComplete():
		verr.Add("address.postal_code", "must have 8 digits")
	}
	for _, field := range d.Address.MissingFields() {
		verr.Add("address."+field, "is required")
	}

	if d.SelectedQuoteID == "" {
		verr.Add("shipping_quote", "is required")
	} else if _, ok := d.Quotes.Find(d.SelectedQuoteID); !ok || d.Quotes.Status != domain.RequestReady {
		verr.Add("shipping_quote", "is no longer available")
	}
	return verr
}

func (r *Reducer) validatePayment(c *domain.Checkout, now time.Time) *domain.ValidationError {
	verr := domain.NewValidationError()
	switch c.Payment.Method {
	case domain.PaymentMethodInstantTransfer:
	case domain.PaymentMethodCard:
		var card domain.CardDetails
		if c.Payment.Card != nil {
			card = *c.Payment.Card
		}
		verr.Merge("card.", r.validator.Validate(now, card))
	default:
		verr.Add("payment.method", "is required")
	}
	return verr
}
