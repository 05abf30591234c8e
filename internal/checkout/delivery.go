package checkout

import (
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/validation"
)

func quotable(c *domain.Checkout) bool {
	return c.Delivery.Address.PostalCodeComplete() && !c.Cart.Empty()
}

// resetLookup выдаёт новый номер запроса справочника; старые ответы станут устаревшими.
func resetLookup(c *domain.Checkout, issue bool) {
	c.Delivery.Lookup = domain.PostalCodeLookup{Status: domain.RequestIdle, Seq: c.NextSeq()}
	if issue && c.Delivery.Address.PostalCodeComplete() {
		c.Delivery.Lookup.Status = domain.RequestLoading
	}
}

// invalidateQuotes заменяет список тарифов целиком и снимает выбор.
func invalidateQuotes(c *domain.Checkout, issue bool) {
	c.Delivery.SelectedQuoteID = ""
	c.Delivery.SelectedQuote = nil
	c.Delivery.Quotes = domain.ShippingQuotes{Status: domain.RequestIdle, Seq: c.NextSeq()}
	if issue && quotable(c) {
		c.Delivery.Quotes.Status = domain.RequestLoading
	}
}

func needsLookup(c *domain.Checkout) bool {
	return !c.Delivery.UsingSavedAddress() &&
		c.Delivery.Address.PostalCodeComplete() &&
		c.Delivery.Lookup.Status != domain.RequestReady
}

func needsQuotes(c *domain.Checkout) bool {
	return quotable(c) && c.Delivery.Quotes.Status != domain.RequestReady
}

func setPostalCode(c *domain.Checkout, a SetPostalCode) error {
	if err := requireStep(c, domain.StepDelivery); err != nil {
		return err
	}
	if c.Delivery.UsingSavedAddress() {
		return domain.ErrAddressReadOnly
	}

	code := validation.PostalCodeInput(a.PostalCode)
	if code == c.Delivery.Address.PostalCode && !needsLookup(c) && !needsQuotes(c) {
		return nil
	}
	c.Delivery.Address.PostalCode = code
	resetLookup(c, true)
	invalidateQuotes(c, true)
	return nil
}

func selectSavedAddress(c *domain.Checkout, a SelectSavedAddress) error {
	if err := requireStep(c, domain.StepDelivery); err != nil {
		return err
	}
	if !c.Authenticated() {
		return domain.ErrNotAuthenticated
	}
	var (
		saved domain.SavedAddress
		found bool
	)
	for _, s := range c.SavedAddresses {
		if s.ID == a.ID {
			saved, found = s, true
			break
		}
	}
	if !found {
		return domain.ErrSavedAddressNotFound
	}

	prevCode := c.Delivery.Address.PostalCode
	prevQuotesReady := c.Delivery.Quotes.Status == domain.RequestReady

	c.Delivery.SelectedSavedAddressID = saved.ID
	c.Delivery.Address = saved.Address
	c.Delivery.Address.PostalCode = validation.PostalCodeInput(saved.Address.PostalCode)
	resetLookup(c, false)
	if c.Delivery.Address.PostalCode != prevCode || !prevQuotesReady {
		invalidateQuotes(c, true)
	}
	return nil
}

// clearSavedAddress обрабатывает действие «изменить», форма очищается и снова редактируема.
func clearSavedAddress(c *domain.Checkout) error {
	if err := requireStep(c, domain.StepDelivery); err != nil {
		return err
	}
	if !c.Delivery.UsingSavedAddress() {
		return nil
	}
	c.Delivery.SelectedSavedAddressID = ""
	c.Delivery.Address = domain.Address{}
	resetLookup(c, false)
	invalidateQuotes(c, false)
	return nil
}

func editAddress(c *domain.Checkout, a EditAddress) error {
	if err := requireStep(c, domain.StepDelivery); err != nil {
		return err
	}
	if c.Delivery.UsingSavedAddress() {
		return domain.ErrAddressReadOnly
	}
	a.Patch.Apply(&c.Delivery.Address)
	return nil
}

func setSaveAddress(c *domain.Checkout, a SetSaveAddress) error {
	if err := requireStep(c, domain.StepDelivery); err != nil {
		return err
	}
	if !c.Authenticated() {
		return domain.ErrNotAuthenticated
	}
	if c.Delivery.UsingSavedAddress() {
		return domain.ErrAddressReadOnly
	}
	c.Delivery.SaveAddress = a.Value
	return nil
}

func selectShippingQuote(c *domain.Checkout, a SelectShippingQuote) error {
	if err := requireStep(c, domain.StepDelivery); err != nil {
		return err
	}
	if c.Delivery.Quotes.Status != domain.RequestReady {
		return domain.ErrQuotesNotReady
	}
	quote, ok := c.Delivery.Quotes.Find(a.ID)
	if !ok {
		return domain.ErrQuoteNotFound
	}
	c.Delivery.SelectedQuoteID = quote.ID
	c.Delivery.SelectedQuote = &quote
	return nil
}

// cartChanged принимается только до шага оплаты: позже тариф уже зафиксирован.
func cartChanged(c *domain.Checkout, a CartChanged) error {
	if c.Step != domain.StepBuyerIdentity && c.Step != domain.StepDelivery {
		return requireStep(c, domain.StepDelivery)
	}
	if c.Cart.Equal(a.Cart) {
		return nil
	}
	c.Cart = a.Cart
	c.Cart.Items = append([]domain.LineItem(nil), a.Cart.Items...)
	invalidateQuotes(c, c.Step == domain.StepDelivery)
	return nil
}

func deliveryRefreshRequested(c *domain.Checkout, a DeliveryRefreshRequested) error {
	if err := requireStep(c, domain.StepDelivery); err != nil {
		return err
	}
	if a.Lookup && needsLookup(c) && c.Delivery.Lookup.Status != domain.RequestFailed {
		resetLookup(c, true)
	}
	if a.Quotes && needsQuotes(c) {
		invalidateQuotes(c, true)
	}
	return nil
}

func postalCodeResolved(c *domain.Checkout, a PostalCodeResolved) error {
	if !lookupPending(c, a.Seq) {
		return domain.ErrStaleResponse
	}
	a.Result.Apply(&c.Delivery.Address)
	c.Delivery.Lookup.Status = domain.RequestReady
	c.Delivery.Lookup.Error = ""
	return nil
}

func postalCodeFailed(c *domain.Checkout, a PostalCodeFailed) error {
	if !lookupPending(c, a.Seq) {
		return domain.ErrStaleResponse
	}
	c.Delivery.Lookup.Status = domain.RequestFailed
	c.Delivery.Lookup.Error = a.Message
	return nil
}

func quotesResolved(c *domain.Checkout, a QuotesResolved) error {
	if !quotesPending(c, a.Seq) {
		return domain.ErrStaleResponse
	}
	c.Delivery.Quotes.Items = append([]domain.ShippingQuote(nil), a.Quotes...)
	c.Delivery.Quotes.Status = domain.RequestReady
	c.Delivery.Quotes.Error = ""
	return nil
}

func quotesFailed(c *domain.Checkout, a QuotesFailed) error {
	if !quotesPending(c, a.Seq) {
		return domain.ErrStaleResponse
	}
	c.Delivery.Quotes.Items = nil
	c.Delivery.Quotes.Status = domain.RequestFailed
	c.Delivery.Quotes.Error = a.Message
	return nil
}

func lookupPending(c *domain.Checkout, seq uint64) bool {
	return c.Step == domain.StepDelivery &&
		c.Delivery.Lookup.Status == domain.RequestLoading &&
		c.Delivery.Lookup.Seq == seq
}

func quotesPending(c *domain.Checkout, seq uint64) bool {
	return c.Step == domain.StepDelivery &&
		c.Delivery.Quotes.Status == domain.RequestLoading &&
		c.Delivery.Quotes.Seq == seq
}
