// Package cache кэширует ответы справочника индексов в Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/validation"
)

const (
	defaultTTL           = 24 * time.Hour
	defaultNotFoundTTL   = time.Hour
	defaultLookupTimeout = 10 * time.Second
)

// ErrCacheMiss: записи нет в кэше.
var ErrCacheMiss = errors.New("cache miss")

type entry struct {
	Result   domain.PostalCodeResult `json:"result"`
	NotFound bool                    `json:"not_found,omitempty"`
}

// PostalCodeDirectory оборачивает справочник индексов кэшем Redis.
// Ошибки Redis не ломают поиск: запрос уходит в исходный справочник.
type PostalCodeDirectory struct {
	client      *redis.Client
	next        domain.PostalCodeDirectory
	ttl         time.Duration
	notFoundTTL time.Duration
	timeout     time.Duration
	group       singleflight.Group
	logger      *log.Entry
}

var _ domain.PostalCodeDirectory = (*PostalCodeDirectory)(nil)

// NewPostalCodeDirectory создаёт кэширующий справочник. ttl <= 0: сутки.
func NewPostalCodeDirectory(client *redis.Client, next domain.PostalCodeDirectory, ttl time.Duration, logger *log.Entry) *PostalCodeDirectory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "postal-code-cache")
	}
	return &PostalCodeDirectory{
		client:      client,
		next:        next,
		ttl:         ttl,
		notFoundTTL: min(ttl, defaultNotFoundTTL),
		timeout:     defaultLookupTimeout,
		logger:      logger,
	}
}

// Lookup возвращает адрес из кэша или из справочника. Одновременные запросы
// одного индекса схлопываются в один вызов.
func (c *PostalCodeDirectory) Lookup(ctx context.Context, postalCode string) (domain.PostalCodeResult, error) {
	digits := validation.Digits(postalCode)
	if len(digits) != domain.PostalCodeLength {
		return c.next.Lookup(ctx, postalCode)
	}

	cached, err := c.get(ctx, digits)
	switch {
	case err == nil:
		if cached.NotFound {
			return domain.PostalCodeResult{}, notFoundError()
		}
		return cached.Result, nil
	case !errors.Is(err, ErrCacheMiss):
		c.logger.WithError(err).WithField("postal_code", digits).Warn("postal code cache read failed")
	}

	ch := c.group.DoChan(digits, func() (any, error) {
		// Вызов общий для всех ожидающих: отмена контекста одного из них его не прерывает.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		res, err := c.next.Lookup(callCtx, digits)
		switch {
		case err == nil:
			c.set(callCtx, digits, entry{Result: res}, c.ttl)
		case errors.Is(err, domain.ErrPostalCodeNotFound):
			c.set(callCtx, digits, entry{NotFound: true}, c.notFoundTTL)
		}
		return res, err
	})

	select {
	case <-ctx.Done():
		return domain.PostalCodeResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return domain.PostalCodeResult{}, r.Err
		}
		return r.Val.(domain.PostalCodeResult), nil
	}
}

// Ping проверяет соединение с Redis.
func (c *PostalCodeDirectory) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *PostalCodeDirectory) get(ctx context.Context, digits string) (entry, error) {
	data, err := c.client.Get(ctx, cacheKey(digits)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry{}, ErrCacheMiss
	}
	if err != nil {
		return entry{}, fmt.Errorf("redis get failed: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return entry{}, fmt.Errorf("unmarshal postal code entry: %w", err)
	}
	return e, nil
}

func (c *PostalCodeDirectory) set(ctx context.Context, digits string, e entry, ttl time.Duration) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.client.Set(context.WithoutCancel(ctx), cacheKey(digits), data, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("postal_code", digits).Warn("postal code cache write failed")
	}
}

func notFoundError() error {
	return &domain.CollaboratorError{
		Op:         "lookupPostalCode",
		StatusCode: http.StatusNotFound,
		Message:    "Postal code not found",
		Err:        domain.ErrPostalCodeNotFound,
	}
}

func cacheKey(digits string) string {
	return fmt.Sprintf("cep:%s", digits)
}
