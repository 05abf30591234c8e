package checkout

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/validation"
)

func selectPaymentMethod(c *domain.Checkout, a SelectPaymentMethod) error {
	if err := requireStep(c, domain.StepPayment); err != nil {
		return err
	}
	if !a.Method.Valid() {
		return domain.ErrUnknownPaymentMethod
	}
	if c.Payment.Method == a.Method {
		return nil
	}
	c.Payment.Method = a.Method
	c.Payment.Card = nil
	if a.Method == domain.PaymentMethodCard {
		c.Payment.Card = &domain.CardDetails{}
	}
	return nil
}

// updateCard нормализует ввод так же, как маски полей формы.
func updateCard(c *domain.Checkout, a UpdateCard) error {
	if err := requireStep(c, domain.StepPayment); err != nil {
		return err
	}
	if c.Payment.Method != domain.PaymentMethodCard {
		return domain.ErrPaymentMethodMismatch
	}
	if c.Payment.Card == nil {
		c.Payment.Card = &domain.CardDetails{}
	}
	card := c.Payment.Card
	p := a.Patch

	if p.Number != nil {
		card.Number = validation.CardNumberInput(*p.Number)
		card.Brand = validation.DetectBrand(card.Number)
		card.Last4 = validation.Last4(card.Number)
	}
	if p.HolderName != nil {
		card.HolderName = validation.HolderNameInput(*p.HolderName)
	}
	if p.Expiry != nil {
		card.Expiry = validation.ExpiryInput(*p.Expiry)
	}
	if p.CVV != nil {
		card.CVV = validation.CVVInput(*p.CVV)
	}
	if p.HolderTaxID != nil {
		card.HolderTaxID = validation.TaxIDInput(*p.HolderTaxID)
	}
	return nil
}

func (r *Reducer) submissionStarted(c *domain.Checkout, now time.Time) error {
	if err := requireStep(c, domain.StepConfirmation); err != nil {
		return err
	}
	if c.Submitting && now.Sub(c.SubmissionStartedAt) < r.submissionTTL {
		return domain.ErrSubmissionInProgress
	}
	if c.Cart.Empty() {
		return domain.ErrCartEmpty
	}

	verr := domain.NewValidationError()
	verr.Merge("", r.validateStep(c, domain.StepBuyerIdentity, now))
	verr.Merge("", r.validateStep(c, domain.StepDelivery, now))
	verr.Merge("", r.validateStep(c, domain.StepPayment, now))
	if !verr.Empty() {
		return verr
	}

	c.Submitting = true
	c.SubmissionStartedAt = now
	return nil
}

// submissionFailed снимает флаг отправки. Номер карты и CVV стираются,
// для повторной попытки их нужно ввести заново.
func submissionFailed(c *domain.Checkout) error {
	if !c.Submitting {
		return domain.ErrNotSubmitting
	}
	c.Submitting = false
	c.SubmissionStartedAt = time.Time{}
	if c.Payment.Card != nil {
		c.Payment.Card.Scrub()
	}
	return nil
}

// orderPlaced фиксирует результат: сессия становится терминальной, номер карты и CVV стираются.
func orderPlaced(c *domain.Checkout, a OrderPlaced, now time.Time) error {
	if !c.Submitting {
		return domain.ErrNotSubmitting
	}
	result := a.Result
	if result.PlacedAt.IsZero() {
		result.PlacedAt = now
	}
	if result.InstantTransfer != nil {
		it := *result.InstantTransfer
		result.InstantTransfer = &it
	}
	c.OrderResult = &result
	c.Submitting = false
	c.SubmissionStartedAt = time.Time{}
	if c.Payment.Card != nil {
		c.Payment.Card.Scrub()
	}
	c.Cart = domain.Cart{ID: c.Cart.ID}
	return nil
}
