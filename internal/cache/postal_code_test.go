package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type stubDirectory struct {
	calls atomic.Int32
	res   map[string]domain.PostalCodeResult
	err   error

	// entered закрывается при первом вызове, release отпускает ожидающий вызов.
	entered chan struct{}
	release chan struct{}
}

func (s *stubDirectory) Lookup(ctx context.Context, postalCode string) (domain.PostalCodeResult, error) {
	if s.calls.Add(1) == 1 && s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return domain.PostalCodeResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return domain.PostalCodeResult{}, s.err
	}
	res, ok := s.res[postalCode]
	if !ok {
		return domain.PostalCodeResult{}, &domain.CollaboratorError{Op: "lookupPostalCode", StatusCode: 404, Message: "Postal code not found", Err: domain.ErrPostalCodeNotFound}
	}
	return res, nil
}

func setupCache(t *testing.T) (*PostalCodeDirectory, *stubDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	next := &stubDirectory{res: map[string]domain.PostalCodeResult{
		"01001000": {Street: "Praça da Sé", District: "Sé", City: "São Paulo", Region: "SP"},
	}}
	return NewPostalCodeDirectory(client, next, 24*time.Hour, nil), next, mr
}

func TestLookup_CachesHits(t *testing.T) {
	c, next, mr := setupCache(t)
	ctx := context.Background()

	first, err := c.Lookup(ctx, "01001-000")
	require.NoError(t, err)
	second, err := c.Lookup(ctx, "01001000")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.True(t, mr.Exists("cep:01001000"))
	assert.InDelta(t, (24 * time.Hour).Seconds(), mr.TTL("cep:01001000").Seconds(), 1)
}

func TestLookup_ExpiredEntryRefetches(t *testing.T) {
	c, next, mr := setupCache(t)
	ctx := context.Background()

	_, err := c.Lookup(ctx, "01001000")
	require.NoError(t, err)
	mr.FastForward(25 * time.Hour)

	_, err = c.Lookup(ctx, "01001000")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestLookup_CachesNotFoundBriefly(t *testing.T) {
	c, next, mr := setupCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Lookup(ctx, "99999999")
		require.ErrorIs(t, err, domain.ErrPostalCodeNotFound)
		assert.Equal(t, "Postal code not found", domain.DisplayMessage(err))
	}
	assert.Equal(t, int32(1), next.calls.Load())
	assert.LessOrEqual(t, mr.TTL("cep:99999999"), time.Hour)
}

func TestLookup_UnavailableIsNotCached(t *testing.T) {
	c, next, mr := setupCache(t)
	next.err = &domain.CollaboratorError{Op: "lookupPostalCode", Err: domain.ErrCollaboratorUnavailable}

	_, err := c.Lookup(context.Background(), "01001000")
	require.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
	assert.False(t, mr.Exists("cep:01001000"))
}

func TestLookup_RedisDownFallsThrough(t *testing.T) {
	c, next, mr := setupCache(t)
	mr.Close()

	res, err := c.Lookup(context.Background(), "01001000")
	require.NoError(t, err)
	assert.Equal(t, "São Paulo", res.City)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Error(t, c.Ping(context.Background()))
}

func TestLookup_CorruptEntryIgnored(t *testing.T) {
	c, next, mr := setupCache(t)
	require.NoError(t, mr.Set("cep:01001000", "{broken"))

	res, err := c.Lookup(context.Background(), "01001000")
	require.NoError(t, err)
	assert.Equal(t, "SP", res.Region)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestLookup_CancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	c, next, mr := setupCache(t)
	next.entered = make(chan struct{})
	next.release = make(chan struct{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Lookup(firstCtx, "01001000")
		firstErr <- err
	}()
	<-next.entered

	cancelFirst()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller must return without waiting for the lookup")
	}

	type outcome struct {
		res domain.PostalCodeResult
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := c.Lookup(context.Background(), "01001-000")
		second <- outcome{res, err}
	}()

	// Даём второму вызову присоединиться к выполняющемуся запросу.
	time.Sleep(50 * time.Millisecond)
	close(next.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Praça da Sé", got.res.Street)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.True(t, mr.Exists("cep:01001000"))
}
