package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// checkoutRepository хранит сессию целиком в JSONB, а версию и шаг: отдельными колонками.
type checkoutRepository struct {
	db *sql.DB
}

// NewCheckoutRepository создаёт PostgreSQL-реализацию CheckoutRepository.
func NewCheckoutRepository(store *Store) domain.CheckoutRepository {
	return &checkoutRepository{db: store.DB()}
}

func (r *checkoutRepository) Create(ctx context.Context, checkout domain.Checkout) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	state, err := json.Marshal(checkout)
	if err != nil {
		return fmt.Errorf("marshal checkout state: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO checkout_sessions (
			id, version, step, completed, state, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		checkout.ID, checkout.Version, string(checkout.Step), checkout.Completed(),
		state, checkout.CreatedAt, checkout.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCheckoutExists
		}
		return fmt.Errorf("insert checkout: %w", err)
	}

	return nil
}

func (r *checkoutRepository) Get(ctx context.Context, id string) (domain.Checkout, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		state   []byte
		version int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT state, version
		FROM checkout_sessions
		WHERE id = $1
	`, id).Scan(&state, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Checkout{}, domain.ErrCheckoutNotFound
		}
		return domain.Checkout{}, fmt.Errorf("select checkout: %w", err)
	}

	var checkout domain.Checkout
	if err := json.Unmarshal(state, &checkout); err != nil {
		return domain.Checkout{}, fmt.Errorf("unmarshal checkout state: %w", err)
	}
	// Колонка version: источник истины, в JSON может лежать предыдущая.
	checkout.Version = version
	return checkout, nil
}

func (r *checkoutRepository) Save(ctx context.Context, checkout domain.Checkout) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	expected := checkout.Version
	checkout.Version++
	state, err := json.Marshal(checkout)
	if err != nil {
		return fmt.Errorf("marshal checkout state: %w", err)
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE checkout_sessions
			SET version = version + 1,
			    step = $1,
			    completed = $2,
			    state = $3,
			    updated_at = $4
			WHERE id = $5
			  AND version = $6
		`,
			string(checkout.Step), checkout.Completed(), state, checkout.UpdatedAt,
			checkout.ID, expected,
		)
		if err != nil {
			return fmt.Errorf("update checkout: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			return nil
		}

		exists, err := r.checkoutExistsTx(ctx, tx, checkout.ID)
		switch {
		case err != nil:
			return err
		case !exists:
			return domain.ErrCheckoutNotFound
		default:
			return domain.ErrCheckoutVersionConflict
		}
	})
}

func (r *checkoutRepository) CountActive(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var n int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM checkout_sessions WHERE NOT completed
	`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active checkouts: %w", err)
	}
	return n, nil
}

func (r *checkoutRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM checkout_sessions
		WHERE id IN (
			SELECT id
			FROM checkout_sessions
			WHERE updated_at < $1
			ORDER BY updated_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired checkouts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected for expired checkouts: %w", err)
	}
	return int(affected), nil
}

func (r *checkoutRepository) checkoutExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var found string
	err := tx.QueryRowContext(ctx, `SELECT id FROM checkout_sessions WHERE id = $1`, id).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check checkout exists: %w", err)
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.CheckoutRepository = (*checkoutRepository)(nil)
