package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/storefront"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

type harness struct {
	coord     *Coordinator
	store     *storefront.MockService
	checkouts domain.CheckoutRepository
	outbox    *memory.OutboxRepository
	timeline  domain.TimelineRepository
	registry  *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     storefront.NewDemoService(),
		checkouts: memory.NewCheckoutRepository(),
		outbox:    memory.NewOutboxRepository(),
		timeline:  memory.NewTimelineRepository(),
		registry:  prometheus.NewRegistry(),
	}
	h.store.SetClock(func() time.Time { return testNow })
	h.coord = h.build()
	return h
}

func (h *harness) build() *Coordinator {
	return NewCoordinator(Dependencies{
		Checkouts:   h.checkouts,
		Outbox:      h.outbox,
		Timeline:    h.timeline,
		Auth:        h.store,
		Addresses:   h.store,
		PostalCodes: h.store,
		Shipping:    h.store,
		Orders:      h.store,
		Carts:       h.store,
	},
		WithClock(func() time.Time { return testNow }),
		WithMetrics(metrics.NewCheckoutMetricsWithRegisterer(h.registry)),
	)
}

// signedIn открывает сессию покупателя с полным профилем.
func (h *harness) signedIn(t *testing.T) (context.Context, domain.Checkout) {
	t.Helper()
	token := h.store.AddUser(domain.Buyer{
		CustomerID: "cust-bia",
		FirstName:  "Bia",
		LastName:   "Souza",
		Email:      "bia@example.com",
		Phone:      "21998765432",
		TaxID:      validCPF,
	}, "secret123")
	ctx := domain.WithAuthToken(context.Background(), token)

	st, err := h.coord.Start(ctx, StartInput{CartID: storefront.DemoCartID})
	require.NoError(t, err)
	require.True(t, st.Authenticated())
	return ctx, st
}

func (h *harness) atDelivery(t *testing.T) (context.Context, string) {
	t.Helper()
	ctx, st := h.signedIn(t)
	next, err := h.coord.Advance(ctx, st.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StepDelivery, next.Step)
	return ctx, st.ID
}

func (h *harness) atConfirmation(t *testing.T, method domain.PaymentMethod) (context.Context, string) {
	t.Helper()
	ctx, id := h.atDelivery(t)

	st, err := h.coord.SetPostalCode(ctx, id, "01001-000")
	require.NoError(t, err)
	require.Equal(t, domain.RequestReady, st.Delivery.Quotes.Status)

	_, err = h.coord.EditAddress(ctx, id, domain.AddressPatch{Number: strPtr("100")})
	require.NoError(t, err)
	_, err = h.coord.SelectShippingQuote(ctx, id, "sedex")
	require.NoError(t, err)
	_, err = h.coord.Advance(ctx, id)
	require.NoError(t, err)

	_, err = h.coord.SelectPaymentMethod(ctx, id, method)
	require.NoError(t, err)
	if method == domain.PaymentMethodCard {
		_, err = h.coord.UpdateCard(ctx, id, domain.CardPatch{
			Number:      strPtr("4111 1111 1111 1111"),
			HolderName:  strPtr("bia souza"),
			Expiry:      strPtr("12/30"),
			CVV:         strPtr("123"),
			HolderTaxID: strPtr(validCPF),
		})
		require.NoError(t, err)
	}
	st, err = h.coord.Advance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StepConfirmation, st.Step)
	return ctx, id
}

func (h *harness) metricSum(t *testing.T, name string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func (h *harness) timelineTypes(t *testing.T, id string) []string {
	t.Helper()
	events, err := h.coord.Timeline(context.Background(), id)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestCoordinator_StartRejectsEmptyCart(t *testing.T) {
	h := newHarness(t)
	h.store.PutCart(domain.Cart{ID: "empty"})

	_, err := h.coord.Start(context.Background(), StartInput{CartID: "empty"})
	require.ErrorIs(t, err, domain.ErrCartEmpty)

	_, err = h.coord.Start(context.Background(), StartInput{CartID: "missing"})
	var cerr *domain.CollaboratorError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, http.StatusNotFound, cerr.StatusCode)
}

func TestCoordinator_GuestHappyPathWithInstantTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	st, err := h.coord.Start(ctx, StartInput{CartID: storefront.DemoCartID})
	require.NoError(t, err)
	require.Equal(t, BuyerViewNotLoggedIn, BuyerViewOf(st).Kind)

	_, err = h.coord.Advance(ctx, st.ID)
	verr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "buyer")

	auth, err := h.coord.Login(ctx, st.ID, domain.Credentials{Email: "  ANA@example.com ", Password: storefront.DemoPassword})
	require.NoError(t, err)
	require.NotEmpty(t, auth.Token)
	require.Len(t, auth.Checkout.SavedAddresses, 1)
	require.Equal(t, "Ana Silva", auth.Checkout.Delivery.Recipient.FullName)
	require.Equal(t, BuyerViewIncomplete, BuyerViewOf(auth.Checkout).Kind)

	authCtx := domain.WithAuthToken(ctx, auth.Token)
	_, err = h.coord.CompleteProfile(authCtx, st.ID, ProfileCompletion{TaxID: "529.982.247-25"})
	require.NoError(t, err)
	profile, _ := h.store.Profile(storefront.DemoEmail)
	require.Equal(t, validCPF, profile.TaxID)

	next, err := h.coord.Advance(authCtx, st.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StepDelivery, next.Step)

	next, err = h.coord.SetPostalCode(authCtx, st.ID, "01001-000")
	require.NoError(t, err)
	require.Equal(t, "Praça da Sé", next.Delivery.Address.Street)
	require.Equal(t, domain.RequestReady, next.Delivery.Lookup.Status)
	require.Len(t, next.Delivery.Quotes.Items, 2)
	require.True(t, next.Delivery.Quotes.Items[0].IsFree)

	_, err = h.coord.EditAddress(authCtx, st.ID, domain.AddressPatch{Number: strPtr("7")})
	require.NoError(t, err)
	_, err = h.coord.SelectShippingQuote(authCtx, st.ID, "pac")
	require.NoError(t, err)
	_, err = h.coord.Advance(authCtx, st.ID)
	require.NoError(t, err)
	_, err = h.coord.SelectPaymentMethod(authCtx, st.ID, domain.PaymentMethodInstantTransfer)
	require.NoError(t, err)
	_, err = h.coord.Advance(authCtx, st.ID)
	require.NoError(t, err)

	placed, err := h.coord.Finalize(authCtx, st.ID)
	require.NoError(t, err)
	require.NotNil(t, placed.OrderResult)
	require.Equal(t, domain.PaymentStatusPending, placed.OrderResult.PaymentStatus)
	require.NotNil(t, placed.OrderResult.InstantTransfer)
	require.Equal(t, testNow.Add(domain.InstantTransferWindow), placed.OrderResult.InstantTransfer.ExpiresAt)

	cart, _ := h.store.Cart(storefront.DemoCartID)
	require.Empty(t, cart.Items)
	require.Len(t, h.store.Addresses("cust-demo"), 2)

	orders := h.store.Orders()
	require.Len(t, orders, 1)
	require.Equal(t, IdempotencyKey(st.ID), orders[0].IdempotencyKey)
	require.Equal(t, int64(0), orders[0].ShippingMinor)

	pending := h.outbox.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, string(kafka.EventTypeOrderPlaced), pending[0].EventType)
	require.Equal(t, st.ID, pending[0].AggregateID)

	require.Equal(t, []string{
		domain.TimelineCheckoutStarted,
		domain.TimelineBuyerSignedIn,
		domain.TimelineProfileCompleted,
		domain.TimelineStepAdvanced,
		domain.TimelineStepAdvanced,
		domain.TimelineStepAdvanced,
		domain.TimelineOrderPlaced,
	}, h.timelineTypes(t, st.ID))

	h.store.SetPaymentStatus(placed.OrderResult.OrderID, domain.PaymentStatusPaid)
	status, err := h.coord.OrderStatus(ctx, st.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, status)
}

func TestCoordinator_StaleLookupDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx, id := h.atDelivery(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.store.LookupHook = func(code string) {
		if code == "01001000" {
			close(entered)
			<-release
		}
	}
	h.store.QuoteHook = func(code string) {
		if code == "01001000" {
			<-release
		}
	}

	var (
		wg      sync.WaitGroup
		firstSt domain.Checkout
		firstEr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstSt, firstEr = h.coord.SetPostalCode(ctx, id, "01001000")
	}()
	<-entered

	second, err := h.coord.SetPostalCode(ctx, id, "20040-002")
	require.NoError(t, err)
	require.Equal(t, "Rio de Janeiro", second.Delivery.Address.City)
	require.Equal(t, domain.RequestReady, second.Delivery.Quotes.Status)

	close(release)
	wg.Wait()
	require.NoError(t, firstEr)

	final, err := h.coord.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Rua da Assembleia", final.Delivery.Address.Street)
	require.Equal(t, "20040002", final.Delivery.Address.PostalCode)
	require.Equal(t, second.Delivery.Lookup.Seq, final.Delivery.Lookup.Seq)
	require.Equal(t, second.Delivery.Quotes.Seq, final.Delivery.Quotes.Seq)
	require.Equal(t, final, firstSt)
	require.Equal(t, float64(2), h.metricSum(t, "checkout_stale_responses_total"))
}

func TestCoordinator_LookupFailureKeepsFormEditable(t *testing.T) {
	h := newHarness(t)
	ctx, id := h.atDelivery(t)

	st, err := h.coord.SetPostalCode(ctx, id, "99999999")
	require.NoError(t, err)
	require.Equal(t, domain.RequestFailed, st.Delivery.Lookup.Status)
	require.Equal(t, "Postal code not found", st.Delivery.Lookup.Error)
	require.Equal(t, domain.RequestReady, st.Delivery.Quotes.Status)

	st, err = h.coord.EditAddress(ctx, id, domain.AddressPatch{Street: strPtr("Rua Nova"), City: strPtr("Campinas")})
	require.NoError(t, err)
	require.Equal(t, "Rua Nova", st.Delivery.Address.Street)
}

func TestCoordinator_MissingDeliveryCollaboratorsFailRequests(t *testing.T) {
	h := newHarness(t)
	h.coord = NewCoordinator(Dependencies{
		Checkouts: h.checkouts,
		Timeline:  h.timeline,
		Auth:      h.store,
		Addresses: h.store,
		Orders:    h.store,
		Carts:     h.store,
	}, WithClock(func() time.Time { return testNow }))
	ctx, id := h.atDelivery(t)

	st, err := h.coord.SetPostalCode(ctx, id, "01001-000")
	require.NoError(t, err)
	require.Equal(t, domain.RequestFailed, st.Delivery.Lookup.Status)
	require.Equal(t, domain.RequestFailed, st.Delivery.Quotes.Status)
	require.Equal(t, domain.DisplayMessage(domain.ErrCollaboratorUnavailable), st.Delivery.Quotes.Error)
	require.Equal(t, 0, h.store.Calls("lookup"))

	stored, err := h.coord.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.RequestFailed, stored.Delivery.Quotes.Status)
}

func TestCoordinator_SavedAddressSkipsLookup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st, err := h.coord.Start(ctx, StartInput{CartID: storefront.DemoCartID})
	require.NoError(t, err)

	_, err = h.coord.SelectSavedAddress(ctx, st.ID, "addr-home")
	require.ErrorIs(t, err, domain.ErrStepMismatch)

	auth, err := h.coord.Login(ctx, st.ID, domain.Credentials{Email: storefront.DemoEmail, Password: storefront.DemoPassword})
	require.NoError(t, err)
	authCtx := domain.WithAuthToken(ctx, auth.Token)
	_, err = h.coord.CompleteProfile(authCtx, st.ID, ProfileCompletion{TaxID: validCPF, SaveToProfile: new(bool)})
	require.NoError(t, err)
	require.Equal(t, 0, h.store.Calls("updateProfile"))

	_, err = h.coord.Advance(authCtx, st.ID)
	require.NoError(t, err)

	next, err := h.coord.SelectSavedAddress(authCtx, st.ID, "addr-home")
	require.NoError(t, err)
	require.Equal(t, "Avenida Paulista", next.Delivery.Address.Street)
	require.Equal(t, domain.RequestReady, next.Delivery.Quotes.Status)
	require.Equal(t, 0, h.store.Calls("lookup"))

	_, err = h.coord.SetPostalCode(authCtx, st.ID, "20040002")
	require.ErrorIs(t, err, domain.ErrAddressReadOnly)
}

func TestCoordinator_RefreshCartRequotes(t *testing.T) {
	h := newHarness(t)
	ctx, id := h.atDelivery(t)

	st, err := h.coord.SetPostalCode(ctx, id, "01001000")
	require.NoError(t, err)
	_, err = h.coord.SelectShippingQuote(ctx, id, "pac")
	require.NoError(t, err)

	h.store.PutCart(domain.Cart{
		ID:            storefront.DemoCartID,
		Items:         []domain.LineItem{{ProductID: "tee-basic", Quantity: 1, UnitPriceMinor: 8990}},
		SubtotalMinor: 8990,
	})

	st, err = h.coord.RefreshCart(ctx, id)
	require.NoError(t, err)
	require.Empty(t, st.Delivery.SelectedQuoteID)
	require.Equal(t, domain.RequestReady, st.Delivery.Quotes.Status)
	pac, ok := st.Delivery.Quotes.Find("pac")
	require.True(t, ok)
	require.False(t, pac.IsFree)
	require.Contains(t, h.timelineTypes(t, id), domain.TimelineCartRefreshed)
}

func TestCoordinator_FinalizeFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	ctx, id := h.atConfirmation(t, domain.PaymentMethodCard)

	h.store.CreateOrderErr = &domain.CollaboratorError{Op: "createOrder", StatusCode: http.StatusUnprocessableEntity, Message: "Card declined"}
	st, err := h.coord.Finalize(ctx, id)
	require.Error(t, err)
	require.Equal(t, "Card declined", domain.DisplayMessage(err))
	require.False(t, st.Submitting)
	require.Nil(t, st.OrderResult)
	require.Empty(t, st.Payment.Card.Number)
	require.Empty(t, st.Payment.Card.CVV)
	require.Equal(t, "1111", st.Payment.Card.Last4)

	pending := h.outbox.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, string(kafka.EventTypeSubmissionFailed), pending[0].EventType)
	require.Contains(t, h.timelineTypes(t, id), domain.TimelineSubmissionFailed)

	// Без повторного ввода карты отправка не начинается.
	h.store.CreateOrderErr = nil
	_, err = h.coord.Finalize(ctx, id)
	verr, ok := domain.AsValidationError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	require.Contains(t, verr.Fields, "card.number")
	require.Contains(t, verr.Fields, "card.cvv")
	require.Equal(t, 1, h.store.Calls("createOrder"))

	_, err = h.coord.Retreat(ctx, id)
	require.NoError(t, err)
	_, err = h.coord.UpdateCard(ctx, id, domain.CardPatch{
		Number: strPtr("4111 1111 1111 1111"),
		CVV:    strPtr("321"),
	})
	require.NoError(t, err)
	_, err = h.coord.Advance(ctx, id)
	require.NoError(t, err)

	placed, err := h.coord.Finalize(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, placed.OrderResult.PaymentStatus)
	require.Empty(t, placed.Payment.Card.Number)
	require.Empty(t, placed.Payment.Card.CVV)
	require.Equal(t, "1111", placed.Payment.Card.Last4)

	stored, err := h.coord.Get(ctx, id)
	require.NoError(t, err)
	require.Empty(t, stored.Payment.Card.Number)

	orders := h.store.Orders()
	require.Len(t, orders, 1)
	require.Equal(t, "4111111111111111", orders[0].Payment.Card.Number)
	require.Equal(t, "321", orders[0].Payment.Card.CVV)
	require.Equal(t, int64(3490), orders[0].ShippingMinor)

	_, err = h.coord.Finalize(ctx, id)
	require.ErrorIs(t, err, domain.ErrCheckoutCompleted)
	require.Equal(t, 2, h.store.Calls("createOrder"))
	require.Zero(t, h.coord.cards.len())
}

func TestCoordinator_CardSecretsNeverReachRepository(t *testing.T) {
	h := newHarness(t)
	ctx, id := h.atConfirmation(t, domain.PaymentMethodCard)

	stored, err := h.checkouts.Get(ctx, id)
	require.NoError(t, err)
	require.Empty(t, stored.Payment.Card.Number)
	require.Empty(t, stored.Payment.Card.CVV)
	require.Equal(t, "1111", stored.Payment.Card.Last4)
	require.Equal(t, "BIA SOUZA", stored.Payment.Card.HolderName)

	data, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NotContains(t, string(data), "4111111111111111")
	require.NotContains(t, string(data), `"cvv"`)

	placed, err := h.coord.Finalize(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, placed.OrderResult)
	orders := h.store.Orders()
	require.Len(t, orders, 1)
	require.Equal(t, "4111111111111111", orders[0].Payment.Card.Number)
	require.Equal(t, "123", orders[0].Payment.Card.CVV)
}

func TestCoordinator_CardSecretsLostAfterRestartOrExpiry(t *testing.T) {
	h := newHarness(t)
	ctx, id := h.atConfirmation(t, domain.PaymentMethodCard)

	// Новый экземпляр координатора не видит номер карты из памяти прежнего.
	restarted := h.build()
	_, err := restarted.Finalize(ctx, id)
	verr, ok := domain.AsValidationError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	require.Contains(t, verr.Fields, "card.number")
	require.Equal(t, 0, h.store.Calls("createOrder"))

	now := testNow
	expiring := NewCoordinator(Dependencies{
		Checkouts:   h.checkouts,
		Auth:        h.store,
		Addresses:   h.store,
		PostalCodes: h.store,
		Shipping:    h.store,
		Orders:      h.store,
		Carts:       h.store,
	},
		WithClock(func() time.Time { return now }),
		WithCardSecretTTL(time.Minute),
	)
	_, err = expiring.Retreat(ctx, id)
	require.NoError(t, err)
	_, err = expiring.UpdateCard(ctx, id, domain.CardPatch{Number: strPtr("4111111111111111"), CVV: strPtr("123")})
	require.NoError(t, err)
	require.Equal(t, 1, expiring.cards.len())

	now = now.Add(2 * time.Minute)
	_, err = expiring.Advance(ctx, id)
	verr, ok = domain.AsValidationError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	require.Contains(t, verr.Fields, "card.cvv")
	require.Zero(t, expiring.cards.len())
}

func TestCoordinator_FinalizeRejectsConcurrentSubmission(t *testing.T) {
	h := newHarness(t)
	ctx, id := h.atConfirmation(t, domain.PaymentMethodInstantTransfer)

	// Другой запрос уже начал отправку.
	_, err := h.coord.dispatch(ctx, id, SubmissionStarted{})
	require.NoError(t, err)

	_, err = h.coord.Finalize(ctx, id)
	require.ErrorIs(t, err, domain.ErrSubmissionInProgress)
	require.Equal(t, 0, h.store.Calls("createOrder"))

	_, err = h.coord.Retreat(ctx, id)
	require.ErrorIs(t, err, domain.ErrSubmissionInProgress)
}

func TestCoordinator_ParallelFinalizeCreatesOneOrder(t *testing.T) {
	h := newHarness(t)
	ctx, id := h.atConfirmation(t, domain.PaymentMethodInstantTransfer)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.coord.Finalize(ctx, id); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), succeeded.Load())
	require.Len(t, h.store.Orders(), 1)
}

func TestCoordinator_RegisterValidatesBeforeCalling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st, err := h.coord.Start(ctx, StartInput{CartID: storefront.DemoCartID})
	require.NoError(t, err)

	reg := domain.Registration{
		FirstName:            "Caio",
		LastName:             "Lima",
		Email:                "caio@example.com",
		BirthDate:            "1995-01-10",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
		Consents:             domain.Consents{PrivacyPolicy: true},
	}
	_, err = h.coord.Register(ctx, st.ID, reg)
	verr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	require.Equal(t, "must be accepted", verr.Fields["consents.terms_of_use"])
	require.Equal(t, 0, h.store.Calls("register"))

	reg.Consents.TermsOfUse = true
	res, err := h.coord.Register(ctx, st.ID, reg)
	require.NoError(t, err)
	require.Equal(t, "Caio Lima", res.Checkout.Delivery.Recipient.FullName)
	require.Equal(t, BuyerViewIncomplete, BuyerViewOf(res.Checkout).Kind)

	_, err = h.coord.Login(ctx, st.ID, domain.Credentials{Email: storefront.DemoEmail, Password: storefront.DemoPassword})
	require.ErrorIs(t, err, domain.ErrAlreadyAuthenticated)
}

func TestCoordinator_LoginRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st, err := h.coord.Start(ctx, StartInput{CartID: storefront.DemoCartID})
	require.NoError(t, err)

	res, err := h.coord.Login(ctx, st.ID, domain.Credentials{Email: storefront.DemoEmail, Password: "nope"})
	require.Error(t, err)
	require.Equal(t, "Invalid email or password", domain.DisplayMessage(err))
	require.False(t, res.Checkout.Authenticated())

	_, err = h.coord.Login(ctx, st.ID, domain.Credentials{Email: "not-an-email"})
	verr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "email")
	require.Contains(t, verr.Fields, "password")
}

// conflictingRepository отдаёт конфликт версий на первых failures сохранениях.
type conflictingRepository struct {
	domain.CheckoutRepository
	failures atomic.Int32
}

func (r *conflictingRepository) Save(ctx context.Context, c domain.Checkout) error {
	if r.failures.Add(-1) >= 0 {
		return domain.ErrCheckoutVersionConflict
	}
	return r.CheckoutRepository.Save(ctx, c)
}

func TestCoordinator_DispatchRetriesVersionConflict(t *testing.T) {
	h := newHarness(t)
	repo := &conflictingRepository{CheckoutRepository: h.checkouts}
	h.checkouts = repo
	h.coord = h.build()
	ctx, id := h.atDelivery(t)

	repo.failures.Store(2)
	st, err := h.coord.SetSaveAddress(ctx, id, false)
	require.NoError(t, err)
	require.False(t, st.Delivery.SaveAddress)

	stored, err := h.coord.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, st.Version, stored.Version)

	repo.failures.Store(dispatchMaxAttempts)
	_, err = h.coord.SetSaveAddress(ctx, id, true)
	require.True(t, domain.IsVersionConflict(err))
}

func TestCoordinator_UnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Advance(context.Background(), "missing")
	require.True(t, errors.Is(err, domain.ErrCheckoutNotFound))

	_, err = h.coord.Timeline(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrCheckoutNotFound)
}
