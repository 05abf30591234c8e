package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	defaultOutboxBatch = 100
	// outboxLease: на сколько запись закрепляется за воркером после PullPending.
	outboxLease = 30 * time.Second
)

// outboxRepository: transactional outbox событий оформления.
// PullPending арендует записи через FOR UPDATE SKIP LOCKED, поэтому несколько
// инстансов сервиса не публикуют одно событие одновременно.
type outboxRepository struct {
	db    *sql.DB
	lease time.Duration
	now   func() time.Time
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{
		db:    store.DB(),
		lease: outboxLease,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.now()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message %s: %w", msg.EventType, err)
	}

	return msg, nil
}

// PullPending арендует до limit самых старых pending-записей.
func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	now := r.now()

	var result []domain.OutboxMessage
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE outbox_messages
			SET locked_until = $2
			WHERE id IN (
				SELECT id
				FROM outbox_messages
				WHERE status = 'pending'
				  AND (locked_until IS NULL OR locked_until < $1)
				ORDER BY created_at, id
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, aggregate_type, aggregate_id, event_type, payload, created_at
		`, now, now.Add(r.lease), limit)
		if err != nil {
			return fmt.Errorf("pull pending outbox messages: %w", err)
		}
		defer rows.Close()

		type claimed struct {
			msg       domain.OutboxMessage
			createdAt time.Time
		}
		var batch []claimed
		for rows.Next() {
			var c claimed
			if err := rows.Scan(
				&c.msg.ID,
				&c.msg.AggregateType,
				&c.msg.AggregateID,
				&c.msg.EventType,
				&c.msg.Payload,
				&c.createdAt,
			); err != nil {
				return fmt.Errorf("scan outbox message: %w", err)
			}
			batch = append(batch, c)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate outbox rows: %w", err)
		}

		// RETURNING не гарантирует порядок подзапроса.
		slices.SortFunc(batch, func(a, b claimed) int {
			if c := a.createdAt.Compare(b.createdAt); c != 0 {
				return c
			}
			return strings.Compare(a.msg.ID, b.msg.ID)
		})
		result = make([]domain.OutboxMessage, 0, len(batch))
		for _, c := range batch {
			result = append(result, c.msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status = 'pending'
	`).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query failed: %w", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, "sent")
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, "failed")
}

func (r *outboxRepository) markStatus(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    locked_until = NULL,
		    updated_at = $3
		WHERE id = $1
	`, id, status, r.now())
	if err != nil {
		return fmt.Errorf("mark outbox message as %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for outbox %s: %w", status, err)
	}
	if affected == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
