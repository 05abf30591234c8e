package domain

import (
	"context"
	"time"
)

// CheckoutRepository описывает требования к хранилищу сессий оформления.
type CheckoutRepository interface {
	// Create сохраняет новую сессию. Возвращает ErrCheckoutExists, если ID занят.
	Create(ctx context.Context, checkout Checkout) error
	// Get возвращает сессию по идентификатору или ErrCheckoutNotFound.
	Get(ctx context.Context, id string) (Checkout, error)
	// Save применяет обновления с учётом optimistic locking и увеличивает Version.
	Save(ctx context.Context, checkout Checkout) error
	// CountActive считает сессии без оформленного заказа.
	CountActive(ctx context.Context) (int, error)
	// DeleteExpired удаляет до limit сессий, не обновлявшихся с before.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла сессии.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, checkoutID string) ([]TimelineEvent, error)
	// DeleteBefore удаляет до limit событий, произошедших раньше before.
	DeleteBefore(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
