// Package health отдаёт /healthz и /readyz по проверкам зависимостей checkout-service
// и синхронизирует с ними grpc.health.v1.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultCheckTimeout = 2 * time.Second

// Status: состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// worse возвращает более тяжёлый из двух статусов.
func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Check: результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report: тело ответа /healthz.
type Report struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет одну зависимость.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки зависимостей.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
}

// NewHandler создаёт handler без проверок; без них сервис считается healthy.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
	}
}

// RegisterChecker добавляет или заменяет проверку. nil игнорируется.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	if checker == nil {
		return
	}
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

// Evaluate запускает все проверки параллельно.
func (h *Handler) Evaluate(ctx context.Context) Report {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		report = Report{
			Status:        StatusHealthy,
			Checks:        make(map[string]Check, len(checkers)),
			Version:       h.version,
			UptimeSeconds: int64(time.Since(h.started).Seconds()),
		}
	)

	var g errgroup.Group
	for name, checker := range checkers {
		g.Go(func() error {
			check := checker.Check(ctx)
			mu.Lock()
			report.Checks[name] = check
			report.Status = worse(report.Status, check.Status)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Timestamp = time.Now().UTC()
	return report
}

// ServeHTTP отдаёт подробный отчёт. 503 только если упала обязательная зависимость.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// ReadinessHandler: короткий ответ для балансировщика.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// ServingStatusSetter: часть *health.Server из grpc, которую обновляет SyncGRPC.
type ServingStatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// SyncGRPC каждые interval переводит grpc health в NOT_SERVING, если сервис unhealthy,
// и обратно в SERVING. Возвращается при отмене ctx.
func (h *Handler) SyncGRPC(ctx context.Context, target ServingStatusSetter, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status := healthpb.HealthCheckResponse_SERVING
		if h.Evaluate(ctx).Status == StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if ctx.Err() != nil {
			return
		}
		target.SetServingStatus("", status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PingChecker вызывает ping зависимости с таймаутом.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	timeout  time.Duration
	optional bool
}

// NewPingChecker проверяет обязательную зависимость, ошибка делает сервис unhealthy.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, timeout: defaultCheckTimeout}
}

// NewOptionalChecker: зависимость, без которой сервис работает хуже, но работает
// (кэш индексов, брокер событий). Ошибка даёт degraded.
func NewOptionalChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, timeout: defaultCheckTimeout, optional: true}
}

// Check выполняет ping.
func (c *PingChecker) Check(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.ping(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err == nil {
		return check
	}

	check.Message = err.Error()
	check.Status = StatusUnhealthy
	if c.optional {
		check.Status = StatusDegraded
	}
	return check
}
