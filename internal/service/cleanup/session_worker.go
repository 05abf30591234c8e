// Package cleanup удаляет брошенные сессии оформления вместе с их таймлайном
// и обновляет gauge активных сессий.
package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	defaultInterval   = 10 * time.Minute
	defaultSessionTTL = 24 * time.Hour
	defaultBatchSize  = 500
)

var (
	cleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_session_cleanup_runs_total",
		Help: "Session cleanup runs grouped by result.",
	}, []string{"result"})
	cleanupDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_session_cleanup_deleted_total",
		Help: "Records deleted by the cleanup worker grouped by kind.",
	}, []string{"kind"})
)

// Options задаёт параметры воркера.
type Options struct {
	Logger     *log.Entry
	Timeline   domain.TimelineRepository
	Metrics    *metrics.CheckoutMetrics
	Interval   time.Duration
	SessionTTL time.Duration
	BatchSize  int
	Now        func() time.Time
}

// Option настраивает SessionWorker.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithTimeline включает удаление событий таймлайна старше SessionTTL.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(opts *Options) { opts.Timeline = repo }
}

// WithMetrics включает обновление checkout_active_sessions.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithInterval задаёт интервал между циклами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) { opts.Interval = interval }
}

// WithSessionTTL задаёт, сколько сессия может не обновляться.
func WithSessionTTL(ttl time.Duration) Option {
	return func(opts *Options) { opts.SessionTTL = ttl }
}

// WithBatchSize задаёт размер одного удаления.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) { opts.BatchSize = batchSize }
}

// WithClock подменяет время.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) { opts.Now = now }
}

// SessionWorker периодически удаляет сессии, не обновлявшиеся дольше SessionTTL.
type SessionWorker struct {
	repo       domain.CheckoutRepository
	timeline   domain.TimelineRepository
	metrics    *metrics.CheckoutMetrics
	logger     *log.Entry
	interval   time.Duration
	sessionTTL time.Duration
	batchSize  int
	now        func() time.Time
}

// NewSessionWorker создаёт воркер очистки сессий.
func NewSessionWorker(repo domain.CheckoutRepository, options ...Option) *SessionWorker {
	opts := Options{
		Interval:   defaultInterval,
		SessionTTL: defaultSessionTTL,
		BatchSize:  defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "session-cleanup-worker")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	return &SessionWorker{
		repo:       repo,
		timeline:   opts.Timeline,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		interval:   opts.Interval,
		sessionTTL: opts.SessionTTL,
		batchSize:  opts.BatchSize,
		now:        opts.Now,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *SessionWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("session cleanup worker is disabled: repo is nil")
		return
	}

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce удаляет просроченные сессии, их таймлайн и пересчитывает число активных.
func (w *SessionWorker) RunOnce(ctx context.Context) {
	before := w.now().Add(-w.sessionTTL)
	deleted, err := w.DeleteExpired(ctx, before)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		cleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("session cleanup run failed")
		return
	}

	cleanupRunsTotal.WithLabelValues("ok").Inc()
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("expired checkout sessions removed")
	}

	if w.timeline != nil {
		purged, err := w.PurgeTimeline(ctx, before)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			w.logger.WithError(err).Warn("timeline purge failed")
		case purged > 0:
			w.logger.WithField("purged", purged).Info("stale timeline events removed")
		}
	}

	if w.metrics == nil {
		return
	}
	active, err := w.repo.CountActive(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("count active sessions failed")
		return
	}
	w.metrics.SetActiveSessions(active)
}

// DeleteExpired удаляет все сессии, не обновлявшиеся с before, порциями batchSize.
func (w *SessionWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}

		total += deleted
		if deleted > 0 {
			cleanupDeletedTotal.WithLabelValues("session").Add(float64(deleted))
		}
		if deleted < w.batchSize {
			return total, nil
		}
	}
}

// PurgeTimeline удаляет события таймлайна старше before порциями batchSize.
func (w *SessionWorker) PurgeTimeline(ctx context.Context, before time.Time) (int, error) {
	if w.timeline == nil {
		return 0, nil
	}
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		purged, err := w.timeline.DeleteBefore(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}

		total += purged
		if purged > 0 {
			cleanupDeletedTotal.WithLabelValues("timeline_event").Add(float64(purged))
		}
		if purged < w.batchSize {
			return total, nil
		}
	}
}
