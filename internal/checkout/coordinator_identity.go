package checkout

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/validation"
)

// AuthResult: состояние сессии после входа и токен, который клиент использует дальше.
type AuthResult struct {
	Checkout domain.Checkout
	Token    string
}

// ProfileCompletion: недостающие поля профиля. SaveToProfile по умолчанию true.
type ProfileCompletion struct {
	TaxID         string
	Phone         string
	SaveToProfile *bool
}

// Login проверяет форму, выполняет вход и загружает адресную книгу покупателя.
func (c *Coordinator) Login(ctx context.Context, id string, creds domain.Credentials) (AuthResult, error) {
	cur, err := c.checkouts.Get(ctx, id)
	if err != nil {
		return AuthResult{}, err
	}
	if _, err := c.reducer.Reduce(cur, ProfileLoaded{}, c.now()); err != nil {
		return AuthResult{Checkout: cur}, err
	}

	creds.Email = normalizeEmail(creds.Email)
	if verr := c.validator.Validate(c.now(), creds); !verr.Empty() {
		return AuthResult{Checkout: cur}, verr
	}

	start := time.Now()
	session, err := c.auth.Login(ctx, creds)
	c.observe("login", start, err)
	if err != nil {
		c.logger.WithError(err).WithField("checkout_id", id).Info("login rejected")
		return AuthResult{Checkout: cur}, err
	}

	authCtx := domain.WithAuthToken(ctx, session.Token)
	addresses := c.loadSavedAddresses(authCtx)

	next, err := c.dispatch(ctx, id, ProfileLoaded{Buyer: session.Buyer, SavedAddresses: addresses})
	if err != nil {
		return AuthResult{Checkout: next, Token: session.Token}, err
	}
	c.appendTimeline(ctx, id, domain.TimelineBuyerSignedIn, next.Step, "")
	return AuthResult{Checkout: next, Token: session.Token}, nil
}

// Register проверяет форму целиком (поля и согласия) и только потом обращается к сервису.
func (c *Coordinator) Register(ctx context.Context, id string, reg domain.Registration) (AuthResult, error) {
	cur, err := c.checkouts.Get(ctx, id)
	if err != nil {
		return AuthResult{}, err
	}
	if _, err := c.reducer.Reduce(cur, ProfileLoaded{}, c.now()); err != nil {
		return AuthResult{Checkout: cur}, err
	}

	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.Email = normalizeEmail(reg.Email)
	reg.Phone = validation.PhoneInput(reg.Phone)
	reg.TaxID = validation.TaxIDInput(reg.TaxID)

	verr := domain.NewValidationError()
	verr.Merge("", c.validator.Validate(c.now(), reg))
	for _, consent := range reg.Consents.Missing() {
		verr.Add("consents."+string(consent), "must be accepted")
	}
	if !verr.Empty() {
		return AuthResult{Checkout: cur}, verr
	}

	start := time.Now()
	session, err := c.auth.Register(ctx, reg)
	c.observe("register", start, err)
	if err != nil {
		return AuthResult{Checkout: cur}, err
	}

	next, err := c.dispatch(ctx, id, ProfileLoaded{Buyer: session.Buyer})
	if err != nil {
		return AuthResult{Checkout: next, Token: session.Token}, err
	}
	c.appendTimeline(ctx, id, domain.TimelineBuyerRegistered, next.Step, "")
	c.logger.WithFields(log.Fields{
		"checkout_id": id,
		"marketing":   reg.Consents.Marketing,
	}).Info("buyer registered")
	return AuthResult{Checkout: next, Token: session.Token}, nil
}

// CompleteProfile дописывает CPF/телефон. При SaveToProfile значения сохраняются в профиле магазина,
// иначе используются только для этого заказа.
func (c *Coordinator) CompleteProfile(ctx context.Context, id string, in ProfileCompletion) (domain.Checkout, error) {
	cur, err := c.checkouts.Get(ctx, id)
	if err != nil {
		return domain.Checkout{}, err
	}
	action := ProfileCompleted{
		TaxID: validation.TaxIDInput(in.TaxID),
		Phone: validation.PhoneInput(in.Phone),
	}
	preview, err := c.reducer.Reduce(cur, action, c.now())
	if err != nil {
		return cur, err
	}

	if in.SaveToProfile == nil || *in.SaveToProfile {
		update := domain.ProfileUpdate{}
		for _, field := range cur.Buyer.MissingFields() {
			switch field {
			case domain.ProfileFieldTaxID:
				update.TaxID = preview.Buyer.TaxID
			case domain.ProfileFieldPhone:
				update.Phone = preview.Buyer.Phone
			}
		}
		start := time.Now()
		_, err := c.auth.UpdateProfile(ctx, update)
		c.observe("updateProfile", start, err)
		if err != nil {
			return cur, err
		}
	}

	next, err := c.dispatch(ctx, id, action)
	if err != nil {
		return next, err
	}
	c.appendTimeline(ctx, id, domain.TimelineProfileCompleted, next.Step, "")
	return next, nil
}

func (c *Coordinator) loadProfile(ctx context.Context) (domain.Buyer, error) {
	start := time.Now()
	buyer, err := c.auth.GetProfile(ctx)
	c.observe("getProfile", start, err)
	return buyer, err
}

// loadSavedAddresses не блокирует оформление: без адресной книги покупатель вводит адрес вручную.
func (c *Coordinator) loadSavedAddresses(ctx context.Context) []domain.SavedAddress {
	if c.addresses == nil {
		return nil
	}
	start := time.Now()
	addresses, err := c.addresses.ListAddresses(ctx)
	c.observe("listAddresses", start, err)
	if err != nil {
		c.logger.WithError(err).Warn("saved addresses unavailable")
		return nil
	}
	return addresses
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
