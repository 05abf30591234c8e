package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// timelineRepositoryInMemory хранит события сессий в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

// Append вставляет событие, сохраняя хронологический порядок.
// События с одинаковым временем остаются в порядке добавления.
func (r *timelineRepositoryInMemory) Append(_ context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.events[event.CheckoutID]
	pos := len(events)
	for pos > 0 && events[pos-1].Occurred.After(event.Occurred) {
		pos--
	}
	r.events[event.CheckoutID] = slices.Insert(events, pos, event)
	return nil
}

// List возвращает копию событий сессии.
func (r *timelineRepositoryInMemory) List(_ context.Context, checkoutID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.events[checkoutID]), nil
}

// DeleteBefore удаляет самые старые события до before, не больше limit штук.
func (r *timelineRepositoryInMemory) DeleteBefore(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, events := range r.events {
		if limit > 0 && deleted >= limit {
			break
		}
		// события отсортированы, поэтому старые всегда в начале.
		n := 0
		for n < len(events) && events[n].Occurred.Before(before) {
			if limit > 0 && deleted+n >= limit {
				break
			}
			n++
		}
		if n == 0 {
			continue
		}
		deleted += n
		if n == len(events) {
			delete(r.events, id)
			continue
		}
		r.events[id] = slices.Clone(events[n:])
	}
	return deleted, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
