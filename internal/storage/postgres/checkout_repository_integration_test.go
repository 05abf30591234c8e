package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func sampleCheckout(id string, updatedAt time.Time) domain.Checkout {
	return domain.Checkout{
		ID:   id,
		Step: domain.StepBuyerIdentity,
		Cart: domain.Cart{
			ID:            "cart-" + id,
			Items:         []domain.LineItem{{ProductID: "p-1", Name: "Camiseta", Quantity: 2, UnitPriceMinor: 4990}},
			SubtotalMinor: 9980,
		},
		Delivery:  domain.Delivery{RecipientSameAsBuyer: true, SaveAddress: true},
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func TestCheckoutRepository_PostgresCRUDAndVersioning(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCheckoutRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	checkout := sampleCheckout("chk-pg-1", now)
	if err := repo.Create(ctx, checkout); err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if err := repo.Create(ctx, checkout); !errors.Is(err, domain.ErrCheckoutExists) {
		t.Fatalf("expected ErrCheckoutExists, got %v", err)
	}

	loaded, err := repo.Get(ctx, checkout.ID)
	if err != nil {
		t.Fatalf("get checkout: %v", err)
	}
	if loaded.Version != 0 || loaded.Cart.SubtotalMinor != 9980 || len(loaded.Cart.Items) != 1 {
		t.Fatalf("unexpected loaded checkout: %+v", loaded)
	}

	loaded.Step = domain.StepDelivery
	loaded.Delivery.Address.PostalCode = "01001000"
	loaded.UpdatedAt = now.Add(time.Second)
	if err := repo.Save(ctx, loaded); err != nil {
		t.Fatalf("save checkout: %v", err)
	}

	// Повторное сохранение той же версии: конфликт.
	if err := repo.Save(ctx, loaded); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	fresh, err := repo.Get(ctx, checkout.ID)
	if err != nil {
		t.Fatalf("get fresh checkout: %v", err)
	}
	if fresh.Version != 1 || fresh.Step != domain.StepDelivery || fresh.Delivery.Address.PostalCode != "01001000" {
		t.Fatalf("unexpected fresh checkout: %+v", fresh)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrCheckoutNotFound) {
		t.Fatalf("expected ErrCheckoutNotFound, got %v", err)
	}
	missing := sampleCheckout("missing", now)
	if err := repo.Save(ctx, missing); !errors.Is(err, domain.ErrCheckoutNotFound) {
		t.Fatalf("expected ErrCheckoutNotFound on save, got %v", err)
	}
}

func TestCheckoutRepository_PostgresStateHasNoCardSecrets(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCheckoutRepository(store)
	ctx := context.Background()

	checkout := sampleCheckout("chk-pg-card", time.Now().UTC().Round(time.Microsecond))
	checkout.Step = domain.StepPayment
	checkout.Payment = domain.Payment{
		Method: domain.PaymentMethodCard,
		Card: &domain.CardDetails{
			Number:     "5555555555554444",
			CVV:        "9876",
			HolderName: "ANA SILVA",
			Last4:      "4444",
			Brand:      domain.CardBrandMastercard,
		},
	}
	if err := repo.Create(ctx, checkout); err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if err := repo.Save(ctx, checkout); err != nil {
		t.Fatalf("save checkout: %v", err)
	}

	var state string
	if err := store.DB().QueryRowContext(ctx, `SELECT state::text FROM checkout_sessions WHERE id = $1`, checkout.ID).Scan(&state); err != nil {
		t.Fatalf("select raw state: %v", err)
	}
	if strings.Contains(state, "5555555555554444") || strings.Contains(state, "9876") {
		t.Fatalf("card secrets persisted: %s", state)
	}
	if !strings.Contains(state, `"last4": "4444"`) && !strings.Contains(state, `"last4":"4444"`) {
		t.Fatalf("last4 missing from persisted state: %s", state)
	}
}

func TestCheckoutRepository_PostgresCountAndExpire(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCheckoutRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	if err := repo.Create(ctx, sampleCheckout("chk-old", now.Add(-48*time.Hour))); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if err := repo.Create(ctx, sampleCheckout("chk-fresh", now)); err != nil {
		t.Fatalf("create fresh: %v", err)
	}
	done := sampleCheckout("chk-done", now)
	done.OrderResult = &domain.OrderResult{OrderID: "o-1", OrderNumber: "100001", PaymentStatus: domain.PaymentStatusPaid}
	if err := repo.Create(ctx, done); err != nil {
		t.Fatalf("create done: %v", err)
	}

	active, err := repo.CountActive(ctx)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 2 {
		t.Fatalf("expected 2 active checkouts, got %d", active)
	}

	removed, err := repo.DeleteExpired(ctx, now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed checkout, got %d", removed)
	}
	if _, err := repo.Get(ctx, "chk-old"); !errors.Is(err, domain.ErrCheckoutNotFound) {
		t.Fatalf("expired checkout must be deleted, got %v", err)
	}
}
