// Package postgres хранит сессии оформления, outbox и таймлайн в PostgreSQL через pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	pingTimeout = 5 * time.Second
	// opTimeout ограничивает один запрос репозитория.
	opTimeout = 5 * time.Second
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

type storeOptions struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

// Option настраивает пул соединений.
type Option func(*storeOptions)

// WithMaxConns задаёт размер пула; idle-соединений держим столько же.
func WithMaxConns(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxOpenConns, o.maxIdleConns = n, n
		}
	}
}

// WithConnLifetime задаёт максимальное время жизни и простоя соединения.
func WithConnLifetime(lifetime, idle time.Duration) Option {
	return func(o *storeOptions) {
		if lifetime > 0 {
			o.connMaxLifetime = lifetime
		}
		if idle > 0 {
			o.connMaxIdleTime = idle
		}
	}
}

// Store: пул соединений к базе checkout-service.
type Store struct {
	db *sql.DB
}

// Open подключается через pgx и проверяет доступность базы.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	opts := storeOptions{
		maxOpenConns:    25,
		maxIdleConns:    25,
		connMaxLifetime: 30 * time.Minute,
		connMaxIdleTime: 5 * time.Minute,
	}
	for _, option := range options {
		option(&opts)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(opts.maxOpenConns)
	db.SetMaxIdleConns(opts.maxIdleConns)
	db.SetConnMaxLifetime(opts.connMaxLifetime)
	db.SetConnMaxIdleTime(opts.connMaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB возвращает пул для низкоуровневого доступа (тесты, миграции).
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Ping проверяет доступность базы. Используется health-проверкой storage.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Collector отдаёт статистику пула (go_sql_*) для Prometheus.
func (s *Store) Collector() prometheus.Collector {
	return collectors.NewDBStatsCollector(s.db, "checkout")
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// txBeginner: *sql.DB или *sql.Conn.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// inTx выполняет fn в транзакции: commit при nil, rollback при ошибке.
func inTx(ctx context.Context, db txBeginner, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
