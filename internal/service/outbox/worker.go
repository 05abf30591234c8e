// Package outbox публикует события оформления из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

var (
	publishResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outbox_publish_attempts_total",
		Help: "Checkout outbox publish attempts grouped by event type and result.",
	}, []string{"event_type", "result"})
	backlogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_outbox_pending_records",
		Help: "Current number of pending checkout events in the outbox.",
	})
	backlogAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending checkout event.",
	})
)

// Config: параметры цикла публикации.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts: попыток на одно событие, после чего оно уходит в DLQ и помечается failed.
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultConfig возвращает параметры по умолчанию.
func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Second,
		BatchSize:      100,
		MaxAttempts:    3,
		RetryBaseDelay: 50 * time.Millisecond,
		RetryMaxDelay:  5 * time.Second,
	}
}

// withDefaults заполняет нулевые и некорректные поля значениями по умолчанию.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = def.RetryMaxDelay
	}
	return c
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithDLQPublisher задаёт publisher для событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

// WithClock подменяет время.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// CycleResult: итог одного прохода по outbox.
type CycleResult struct {
	Pulled       int
	Sent         int
	Failed       int
	DeadLettered int
}

// Worker публикует pending-события сессий оформления.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	cfg       Config
	logger    *log.Entry
	now       func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config, options ...Option) *Worker {
	w := &Worker{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
	}
	for _, option := range options {
		option(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.now == nil {
		w.now = func() time.Time { return time.Now().UTC() }
	}
	return w
}

// Run опрашивает outbox каждые PollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	for {
		result := w.ProcessOnce(ctx)
		if result.Pulled > 0 {
			w.logger.WithFields(log.Fields{
				"pulled":        result.Pulled,
				"sent":          result.Sent,
				"failed":        result.Failed,
				"dead_lettered": result.DeadLettered,
			}).Debug("outbox cycle finished")
		}
		if !sleep(ctx, w.cfg.PollInterval) {
			return
		}
	}
}

// ProcessOnce публикует одну порцию событий.
func (w *Worker) ProcessOnce(ctx context.Context) CycleResult {
	var result CycleResult
	if ctx.Err() != nil {
		return result
	}

	w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}
	result.Pulled = len(batch)

	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		w.deliver(ctx, msg, &result)
	}

	if result.Pulled > 0 {
		w.observeBacklog(ctx)
	}
	return result
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage, result *CycleResult) {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":   msg.ID,
		"checkout_id": msg.AggregateID,
		"event_type":  msg.EventType,
	})

	publishErr := w.publish(ctx, msg)
	if publishErr == nil {
		result.Sent++
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox message as sent")
		}
		return
	}
	// при отмене запись остаётся pending и вернётся после истечения аренды.
	if ctx.Err() != nil {
		return
	}

	result.Failed++
	publishResults.WithLabelValues(msg.EventType, "failed").Inc()
	entry.WithError(publishErr).Error("outbox publish failed after retries")

	if w.dlq != nil {
		if err := w.deadLetter(msg, publishErr); err != nil {
			publishResults.WithLabelValues(msg.EventType, "dlq_failed").Inc()
			entry.WithError(err).Warn("failed to publish to DLQ")
		} else {
			result.DeadLettered++
		}
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("failed to mark outbox message as failed")
	}
}

// publish делает до MaxAttempts попыток с экспоненциальной паузой между ними.
func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if err = w.publisher.Publish(msg); err == nil {
			publishResults.WithLabelValues(msg.EventType, "sent").Inc()
			return nil
		}
		publishResults.WithLabelValues(msg.EventType, "retry_error").Inc()

		if attempt < w.cfg.MaxAttempts && !sleep(ctx, w.backoff(attempt)) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", msg.ID, w.cfg.MaxAttempts, err)
}

// backoff: base·2^(attempt-1), не больше RetryMaxDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	base := w.cfg.RetryBaseDelay
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= w.cfg.RetryMaxDelay || delay <= 0 {
			return w.cfg.RetryMaxDelay
		}
	}
	return min(delay, w.cfg.RetryMaxDelay)
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	backlogSize.Set(float64(stats.PendingCount))
	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0)
	}
	backlogAge.Set(age)
}

// DeadLetter описывает запись DLQ, то есть исходное событие и причина отказа.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	CheckoutID    string          `json:"checkout_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"publish_error"`
	FailedAt      time.Time       `json:"dlq_published_at"`
}

func (w *Worker) deadLetter(msg domain.OutboxMessage, cause error) error {
	payload, err := json.Marshal(DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		CheckoutID:    msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		Error:         cause.Error(),
		FailedAt:      w.now(),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter %s: %w", msg.ID, err)
	}

	letter := msg
	letter.Payload = payload
	if err := w.dlq.Publish(letter); err != nil {
		return fmt.Errorf("publish dead letter %s: %w", msg.ID, err)
	}
	return nil
}

// sleep ждёт d или отмены ctx; false означает отмену.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
