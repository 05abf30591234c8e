package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const defaultTimelinePurgeBatch = 1000

// timelineRepository: журнал событий сессии в таблице timeline_events.
// Порядок чтения: occurred, затем id (порядок вставки).
type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.CheckoutID == "" {
		return fmt.Errorf("append timeline event %s: empty checkout id", event.Type)
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_events (checkout_id, type, step, reason, occurred) VALUES ($1, $2, $3, $4, $5)`,
		event.CheckoutID, event.Type, string(event.Step), event.Reason, event.Occurred.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append timeline event %s for %s: %w", event.Type, event.CheckoutID, err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, checkoutID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT type, step, reason, occurred FROM timeline_events WHERE checkout_id = $1 ORDER BY occurred, id`,
		checkoutID,
	)
	if err != nil {
		return nil, fmt.Errorf("query timeline of %s: %w", checkoutID, err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		event := domain.TimelineEvent{CheckoutID: checkoutID}
		var step string
		if err := rows.Scan(&event.Type, &step, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline row: %w", err)
		}
		event.Step = domain.Step(step)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline rows: %w", err)
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}
	return events, nil
}

// DeleteBefore удаляет самые старые события порцией до limit строк.
func (r *timelineRepository) DeleteBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultTimelinePurgeBatch
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM timeline_events
		WHERE id IN (
			SELECT id FROM timeline_events
			WHERE occurred < $1
			ORDER BY occurred, id
			LIMIT $2
		)
	`, before.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("purge timeline events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected for timeline purge: %w", err)
	}
	return int(affected), nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
