package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func okPing(context.Context) error { return nil }

func failingPing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHandler_Healthz(t *testing.T) {
	testCases := []struct {
		name       string
		checkers   map[string]*PingChecker
		wantCode   int
		wantStatus Status
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name:       "storage up",
			checkers:   map[string]*PingChecker{"storage": NewPingChecker("storage", okPing)},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name: "cache down degrades",
			checkers: map[string]*PingChecker{
				"storage":           NewPingChecker("storage", okPing),
				"postal_code_cache": NewOptionalChecker("postal_code_cache", failingPing("redis down")),
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name: "storage down wins over degraded",
			checkers: map[string]*PingChecker{
				"storage":           NewPingChecker("storage", failingPing("connection refused")),
				"postal_code_cache": NewOptionalChecker("postal_code_cache", failingPing("redis down")),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler("v1.4.0")
			for name, checker := range tc.checkers {
				handler.RegisterChecker(name, checker)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var report Report
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
			assert.Equal(t, tc.wantStatus, report.Status)
			assert.Equal(t, "v1.4.0", report.Version)
			assert.Len(t, report.Checks, len(tc.checkers))
		})
	}
}

func TestHandler_ReportsCheckMessage(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("storage", NewPingChecker("storage", failingPing("connection refused")))
	handler.RegisterChecker("ignored", nil)

	report := handler.Evaluate(context.Background())

	require.Len(t, report.Checks, 1)
	assert.Equal(t, "connection refused", report.Checks["storage"].Message)
	assert.False(t, report.Timestamp.IsZero())
}

func TestHandler_EvaluateRunsChecksConcurrently(t *testing.T) {
	handler := NewHandler("dev")
	var running atomic.Int32
	var peak atomic.Int32
	slow := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	for _, name := range []string{"a", "b", "c"} {
		handler.RegisterChecker(name, NewPingChecker(name, slow))
	}

	start := time.Now()
	report := handler.Evaluate(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Less(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(3), peak.Load())
}

func TestLivenessAndReadinessHandlers(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	ready := NewHandler("dev")
	ready.RegisterChecker("storage", NewPingChecker("storage", okPing))
	ready.RegisterChecker("kafka", NewOptionalChecker("kafka", failingPing("broker unreachable")))
	rec = httptest.NewRecorder()
	ready.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())

	notReady := NewHandler("dev")
	notReady.RegisterChecker("storage", NewPingChecker("storage", failingPing("down")))
	rec = httptest.NewRecorder()
	notReady.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", strings.TrimSpace(rec.Body.String()))
}

func TestPingChecker(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		checker := NewPingChecker("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		checker.timeout = 20 * time.Millisecond

		check := checker.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, check.Status)
		assert.Equal(t, context.DeadlineExceeded.Error(), check.Message)
	})

	t.Run("duration recorded", func(t *testing.T) {
		checker := NewPingChecker("storage", func(context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		})

		check := checker.Check(context.Background())
		assert.Equal(t, StatusHealthy, check.Status)
		assert.GreaterOrEqual(t, check.DurationMs, int64(10))
		assert.Empty(t, check.Message)
	})

	t.Run("optional failure", func(t *testing.T) {
		check := NewOptionalChecker("cache", failingPing("redis down")).Check(context.Background())
		assert.Equal(t, StatusDegraded, check.Status)
		assert.Equal(t, "cache", check.Name)
	})
}

type recordingSetter struct {
	mu       sync.Mutex
	statuses []healthpb.HealthCheckResponse_ServingStatus
}

func (r *recordingSetter) SetServingStatus(_ string, status healthpb.HealthCheckResponse_ServingStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recordingSetter) snapshot() []healthpb.HealthCheckResponse_ServingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]healthpb.HealthCheckResponse_ServingStatus(nil), r.statuses...)
}

func TestHandler_SyncGRPC(t *testing.T) {
	var storageDown atomic.Bool
	handler := NewHandler("dev")
	handler.RegisterChecker("storage", NewPingChecker("storage", func(context.Context) error {
		if storageDown.Load() {
			return errors.New("down")
		}
		return nil
	}))

	setter := &recordingSetter{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.SyncGRPC(ctx, setter, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return len(setter.snapshot()) > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, setter.snapshot()[0])

	storageDown.Store(true)
	require.Eventually(t, func() bool {
		statuses := setter.snapshot()
		return statuses[len(statuses)-1] == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SyncGRPC did not stop on cancel")
	}
}
