package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func TestSessionWorker_DeleteExpired_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubSessionRepo{deleteResults: []int{2, 2, 1}}
	worker := NewSessionWorker(repo, WithBatchSize(2))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("unexpected deleted total: got=%d want=5", deleted)
	}
	if calls := repo.calls(); calls != 3 {
		t.Fatalf("unexpected delete calls: got=%d want=3", calls)
	}
}

func TestSessionWorker_DeleteExpired_Error(t *testing.T) {
	t.Parallel()

	repo := &stubSessionRepo{deleteErr: errors.New("boom")}
	worker := NewSessionWorker(repo, WithBatchSize(10))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected DeleteExpired error")
	}
	if deleted != 0 {
		t.Fatalf("unexpected deleted total: got=%d want=0", deleted)
	}
}

func TestSessionWorker_RunOnce_RemovesStaleSessions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	repo := memory.NewCheckoutRepository()
	ctx := context.Background()
	for id, updated := range map[string]time.Time{
		"stale": now.Add(-25 * time.Hour),
		"fresh": now.Add(-time.Hour),
	} {
		err := repo.Create(ctx, domain.Checkout{ID: id, Step: domain.StepDelivery, UpdatedAt: updated})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewCheckoutMetricsWithRegisterer(reg)
	worker := NewSessionWorker(repo,
		WithSessionTTL(24*time.Hour),
		WithMetrics(m),
		WithClock(func() time.Time { return now }),
	)
	worker.RunOnce(ctx)

	if _, err := repo.Get(ctx, "stale"); !errors.Is(err, domain.ErrCheckoutNotFound) {
		t.Fatalf("stale session must be removed, got %v", err)
	}
	if _, err := repo.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session must stay: %v", err)
	}

	if got := gaugeValue(t, reg, "checkout_active_sessions"); got != 1 {
		t.Fatalf("expected 1 active session, got %v", got)
	}
}

func TestSessionWorker_RunOnce_PurgesTimeline(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	timeline := memory.NewTimelineRepository()
	for i := 0; i < 5; i++ {
		event := domain.TimelineEvent{CheckoutID: "stale", Type: domain.TimelineStepAdvanced, Occurred: now.Add(-48*time.Hour + time.Duration(i)*time.Second)}
		if err := timeline.Append(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := timeline.Append(ctx, domain.TimelineEvent{CheckoutID: "fresh", Type: domain.TimelineCheckoutStarted, Occurred: now}); err != nil {
		t.Fatalf("append: %v", err)
	}

	worker := NewSessionWorker(memory.NewCheckoutRepository(),
		WithTimeline(timeline),
		WithBatchSize(2),
		WithClock(func() time.Time { return now }),
	)
	worker.RunOnce(ctx)

	if events, _ := timeline.List(ctx, "stale"); len(events) != 0 {
		t.Fatalf("stale timeline must be purged, got %d events", len(events))
	}
	if events, _ := timeline.List(ctx, "fresh"); len(events) != 1 {
		t.Fatalf("fresh timeline must stay, got %d events", len(events))
	}
}

func TestSessionWorker_PurgeTimeline_Disabled(t *testing.T) {
	t.Parallel()

	worker := NewSessionWorker(&stubSessionRepo{})
	purged, err := worker.PurgeTimeline(context.Background(), time.Now())
	if err != nil || purged != 0 {
		t.Fatalf("expected no-op without timeline, got purged=%d err=%v", purged, err)
	}
}

func TestSessionWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubSessionRepo{}
	worker := NewSessionWorker(repo, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
	if repo.calls() == 0 {
		t.Fatal("expected cleanup to be called at least once")
	}
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name && family.GetType() == dto.MetricType_GAUGE {
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

type stubSessionRepo struct {
	domain.CheckoutRepository

	mu            sync.Mutex
	deleteResults []int
	deleteErr     error
	callCount     int
}

func (s *stubSessionRepo) DeleteExpired(_ context.Context, _ time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubSessionRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}
