package checkout

import (
	"strings"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/validation"
)

// BuyerViewKind: какой вариант шага идентификации показать.
type BuyerViewKind string

const (
	BuyerViewNotLoggedIn BuyerViewKind = "not_logged_in"
	BuyerViewIncomplete  BuyerViewKind = "incomplete"
	BuyerViewComplete    BuyerViewKind = "complete"
)

// BuyerView описывает размеченное объединение, где ровно один вариант, Missing только для Incomplete.
type BuyerView struct {
	Kind    BuyerViewKind         `json:"kind"`
	Missing []domain.ProfileField `json:"missing,omitempty"`
}

// ResolveBuyerView зависит только от факта входа и полноты профиля.
func ResolveBuyerView(authenticated bool, buyer domain.Buyer) BuyerView {
	if !authenticated {
		return BuyerView{Kind: BuyerViewNotLoggedIn}
	}
	if missing := buyer.MissingFields(); len(missing) > 0 {
		return BuyerView{Kind: BuyerViewIncomplete, Missing: missing}
	}
	return BuyerView{Kind: BuyerViewComplete}
}

// BuyerViewOf: удобная обёртка над состоянием сессии.
func BuyerViewOf(c domain.Checkout) BuyerView {
	if c.Buyer == nil {
		return ResolveBuyerView(false, domain.Buyer{})
	}
	return ResolveBuyerView(true, *c.Buyer)
}

func profileLoaded(c *domain.Checkout, a ProfileLoaded) error {
	if err := requireStep(c, domain.StepBuyerIdentity); err != nil {
		return err
	}
	if c.Authenticated() {
		return domain.ErrAlreadyAuthenticated
	}
	buyer := a.Buyer
	c.Buyer = &buyer
	c.SavedAddresses = append([]domain.SavedAddress(nil), a.SavedAddresses...)
	syncDerivedRecipient(c)
	return nil
}

func profileCompleted(c *domain.Checkout, a ProfileCompleted) error {
	if err := requireStep(c, domain.StepBuyerIdentity); err != nil {
		return err
	}
	if !c.Authenticated() {
		return domain.ErrNotAuthenticated
	}
	missing := c.Buyer.MissingFields()
	if len(missing) == 0 {
		return domain.ErrProfileComplete
	}

	verr := domain.NewValidationError()
	for _, field := range missing {
		switch field {
		case domain.ProfileFieldTaxID:
			taxID := validation.TaxIDInput(a.TaxID)
			switch {
			case taxID == "":
				verr.Add(string(field), "is required")
			case !validation.ValidCPF(taxID):
				verr.Add(string(field), "is not a valid CPF")
			default:
				c.Buyer.TaxID = taxID
			}
		case domain.ProfileFieldPhone:
			phone := validation.PhoneInput(a.Phone)
			switch {
			case phone == "":
				verr.Add(string(field), "is required")
			case len(phone) < 10:
				verr.Add(string(field), "must have 10 or 11 digits")
			default:
				c.Buyer.Phone = phone
			}
		}
	}
	if !verr.Empty() {
		return verr
	}
	syncDerivedRecipient(c)
	return nil
}

// syncDerivedRecipient поддерживает получателя равным покупателю, пока включён флажок.
func syncDerivedRecipient(c *domain.Checkout) {
	if !c.Delivery.RecipientSameAsBuyer {
		return
	}
	if c.Buyer == nil {
		c.Delivery.Recipient = domain.Recipient{}
		return
	}
	c.Delivery.Recipient = domain.Recipient{
		FullName: c.Buyer.FullName(),
		Phone:    c.Buyer.Phone,
	}
}

func setRecipientSameAsBuyer(c *domain.Checkout, a SetRecipientSameAsBuyer) error {
	if err := requireStep(c, domain.StepDelivery); err != nil {
		return err
	}
	if a.Value && !c.Authenticated() {
		return domain.ErrNotAuthenticated
	}
	c.Delivery.RecipientSameAsBuyer = a.Value
	if a.Value {
		syncDerivedRecipient(c)
	} else {
		c.Delivery.Recipient = domain.Recipient{}
	}
	return nil
}

func setRecipient(c *domain.Checkout, a SetRecipient) error {
	if err := requireStep(c, domain.StepDelivery); err != nil {
		return err
	}
	if c.Delivery.RecipientSameAsBuyer {
		return domain.ErrRecipientDerived
	}
	c.Delivery.Recipient = domain.Recipient{
		FullName: strings.TrimSpace(a.Recipient.FullName),
		Phone:    validation.PhoneInput(a.Recipient.Phone),
	}
	return nil
}
