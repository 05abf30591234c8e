package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// checkoutRepositoryInMemory: in-memory реализация CheckoutRepository.
type checkoutRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Checkout
}

// NewCheckoutRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewCheckoutRepository() domain.CheckoutRepository {
	return &checkoutRepositoryInMemory{items: make(map[string]domain.Checkout)}
}

// Create сохраняет новую сессию, если ID ещё не занят.
func (r *checkoutRepositoryInMemory) Create(_ context.Context, checkout domain.Checkout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[checkout.ID]; exists {
		return domain.ErrCheckoutExists
	}
	r.items[checkout.ID] = checkout.WithoutCardSecrets()
	return nil
}

// Get возвращает копию сессии или ErrCheckoutNotFound.
func (r *checkoutRepositoryInMemory) Get(_ context.Context, id string) (domain.Checkout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	checkout, ok := r.items[id]
	if !ok {
		return domain.Checkout{}, domain.ErrCheckoutNotFound
	}
	return checkout.Clone(), nil
}

// Save перезаписывает сессию, проверяя версию (optimistic locking).
// Номер карты и CVV не сохраняются.
func (r *checkoutRepositoryInMemory) Save(_ context.Context, checkout domain.Checkout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[checkout.ID]
	if !ok {
		return domain.ErrCheckoutNotFound
	}
	if current.Version != checkout.Version {
		return domain.ErrCheckoutVersionConflict
	}
	stored := checkout.WithoutCardSecrets()
	stored.Version++
	r.items[checkout.ID] = stored
	return nil
}

// CountActive считает сессии без заказа.
func (r *checkoutRepositoryInMemory) CountActive(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.items {
		if c.OrderResult == nil {
			n++
		}
	}
	return n, nil
}

// DeleteExpired удаляет сессии, которые не обновлялись с before.
func (r *checkoutRepositoryInMemory) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, c := range r.items {
		if !c.UpdatedAt.Before(before) {
			continue
		}
		delete(r.items, id)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}
	return removed, nil
}

var _ domain.CheckoutRepository = (*checkoutRepositoryInMemory)(nil)
