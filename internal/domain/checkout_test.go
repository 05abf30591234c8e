package domain_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// helper для создания сессии на шаге доставки с выбранным тарифом.
func makeCheckout() domain.Checkout {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	buyer := domain.Buyer{CustomerID: "c-1", FirstName: "Ana", LastName: "Silva", Phone: "11987654321", TaxID: "52998224725"}
	quote := domain.ShippingQuote{ID: "pac", Label: "PAC", IsFree: true}
	return domain.Checkout{
		ID:    "chk-1",
		Step:  domain.StepDelivery,
		Buyer: &buyer,
		Delivery: domain.Delivery{
			RecipientSameAsBuyer: true,
			Recipient:            domain.Recipient{FullName: "Ana Silva", Phone: "11987654321"},
			Quotes:               domain.ShippingQuotes{Status: domain.RequestReady, Items: []domain.ShippingQuote{quote}},
			SelectedQuoteID:      "pac",
			SelectedQuote:        &quote,
		},
		Cart: domain.Cart{
			ID:            "cart-1",
			Items:         []domain.LineItem{{ProductID: "p-1", Quantity: 1, UnitPriceMinor: 35000}},
			SubtotalMinor: 35000,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStepNavigation(t *testing.T) {
	next, ok := domain.StepBuyerIdentity.Next()
	if !ok || next != domain.StepDelivery {
		t.Fatalf("expected delivery after buyer identity, got %s", next)
	}
	if _, ok := domain.StepConfirmation.Next(); ok {
		t.Fatalf("confirmation must be the last step")
	}
	if _, ok := domain.StepBuyerIdentity.Prev(); ok {
		t.Fatalf("buyer identity must be the first step")
	}
	prev, ok := domain.StepPayment.Prev()
	if !ok || prev != domain.StepDelivery {
		t.Fatalf("expected delivery before payment, got %s", prev)
	}
	if domain.Step("bogus").Index() != -1 {
		t.Fatalf("unknown step must have index -1")
	}
}

func TestCheckoutClone_IsDeep(t *testing.T) {
	orig := makeCheckout()
	clone := orig.Clone()

	clone.Buyer.Phone = "000"
	clone.Delivery.Quotes.Items[0].Label = "changed"
	clone.Delivery.SelectedQuote.Label = "changed"
	clone.Cart.Items[0].Quantity = 7

	if orig.Buyer.Phone != "11987654321" {
		t.Fatalf("buyer shared between clones")
	}
	if orig.Delivery.Quotes.Items[0].Label != "PAC" || orig.Delivery.SelectedQuote.Label != "PAC" {
		t.Fatalf("quotes shared between clones")
	}
	if orig.Cart.Items[0].Quantity != 1 {
		t.Fatalf("cart items shared between clones")
	}
}

func TestCheckoutValidateInvariants_Ok(t *testing.T) {
	c := makeCheckout()
	if errs := c.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no invariant errors, got %v", errs)
	}
}

func TestCheckoutValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(c *domain.Checkout)
	}{
		{name: "unknown step", mut: func(c *domain.Checkout) { c.Step = "bogus" }},
		{name: "recipient drifted from buyer", mut: func(c *domain.Checkout) { c.Delivery.Recipient.Phone = "1" }},
		{name: "quote id without quote", mut: func(c *domain.Checkout) { c.Delivery.SelectedQuote = nil }},
		{name: "card on instant transfer", mut: func(c *domain.Checkout) {
			c.Payment = domain.Payment{Method: domain.PaymentMethodInstantTransfer, Card: &domain.CardDetails{}}
		}},
		{name: "result while submitting", mut: func(c *domain.Checkout) {
			c.Submitting = true
			c.OrderResult = &domain.OrderResult{OrderID: "o-1"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := makeCheckout()
			tc.mut(&c)
			if errs := c.ValidateInvariants(); len(errs) == 0 {
				t.Fatalf("expected invariant errors")
			}
		})
	}
}

func TestBuyerMissingFields(t *testing.T) {
	b := domain.Buyer{FirstName: "Ana", LastName: "Silva", Phone: "  "}
	missing := b.MissingFields()
	if len(missing) != 2 || missing[0] != domain.ProfileFieldTaxID || missing[1] != domain.ProfileFieldPhone {
		t.Fatalf("unexpected missing fields: %v", missing)
	}
	if b.Complete() {
		t.Fatalf("profile without tax id must be incomplete")
	}
	if b.FullName() != "Ana Silva" {
		t.Fatalf("unexpected full name %q", b.FullName())
	}
}

func TestConsentsMissing(t *testing.T) {
	c := domain.Consents{PrivacyPolicy: true, Marketing: true}
	missing := c.Missing()
	if len(missing) != 1 || missing[0] != domain.ConsentTermsOfUse {
		t.Fatalf("expected only terms of use missing, got %v", missing)
	}
	if len((domain.Consents{PrivacyPolicy: true, TermsOfUse: true}).Missing()) != 0 {
		t.Fatalf("marketing consent must be optional")
	}
}

func TestCartValidateInvariants(t *testing.T) {
	cart := makeCheckout().Cart
	if errs := cart.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	cart.SubtotalMinor = 1
	if errs := cart.ValidateInvariants(); len(errs) != 1 {
		t.Fatalf("expected amount mismatch, got %v", errs)
	}
}

func TestPostalCodeResultApply_KeepsMissingFields(t *testing.T) {
	addr := domain.Address{PostalCode: "01001000", Street: "typed", Number: "10", City: "typed city"}
	domain.PostalCodeResult{Street: "Praça da Sé", District: "Sé"}.Apply(&addr)

	if addr.Street != "Praça da Sé" || addr.District != "Sé" {
		t.Fatalf("returned fields must overwrite: %+v", addr)
	}
	if addr.City != "typed city" || addr.Number != "10" {
		t.Fatalf("absent fields must be left untouched: %+v", addr)
	}
}

func TestCheckoutWithoutCardSecrets(t *testing.T) {
	orig := makeCheckout()
	orig.Step = domain.StepPayment
	orig.Payment = domain.Payment{
		Method: domain.PaymentMethodCard,
		Card: &domain.CardDetails{
			Number:     "4111111111111111",
			CVV:        "737",
			HolderName: "ANA SILVA",
			Last4:      "1111",
			Brand:      domain.CardBrandVisa,
		},
	}

	stored := orig.WithoutCardSecrets()
	if stored.Payment.Card.Number != "" || stored.Payment.Card.CVV != "" {
		t.Fatalf("card secrets kept: %+v", stored.Payment.Card)
	}
	if stored.Payment.Card.Last4 != "1111" || stored.Payment.Card.HolderName != "ANA SILVA" {
		t.Fatalf("display fields lost: %+v", stored.Payment.Card)
	}
	if orig.Payment.Card.Number == "" || orig.Payment.Card.CVV == "" {
		t.Fatalf("original must not be modified")
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "4111111111111111") || strings.Contains(string(data), "737") {
		t.Fatalf("card secrets serialized: %s", data)
	}
}
