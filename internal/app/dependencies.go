package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/cache"
	"github.com/vladislavdragonenkov/checkout/internal/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/client"
	"github.com/vladislavdragonenkov/checkout/internal/client/storeapi"
	"github.com/vladislavdragonenkov/checkout/internal/client/viacep"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/service/storefront"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

// runtimeDependencies: хранилища и внешние сервисы, собранные по конфигурации.
type runtimeDependencies struct {
	checkouts domain.CheckoutRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository

	auth        domain.AuthService
	addresses   domain.AddressBook
	postalCodes domain.PostalCodeDirectory
	shipping    domain.ShippingQuoter
	orders      domain.OrderService
	carts       domain.CartService

	storageChecker healthcheck.Checker
	cacheChecker   healthcheck.Checker
	closers        []func() error
}

// initRuntimeDependencies открывает хранилище и собирает клиентов внешних сервисов.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}
	if err := deps.initStorage(ctx, cfg, logger); err != nil {
		return nil, err
	}
	deps.initCollaborators(cfg, logger)
	return deps, nil
}

func (d *runtimeDependencies) initStorage(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		d.checkouts = memory.NewCheckoutRepository()
		d.outbox = memory.NewOutboxRepository()
		d.timeline = memory.NewTimelineRepository()
		d.storageChecker = healthcheck.NewPingChecker("storage", func(context.Context) error { return nil })
		logger.Info("using in-memory storage")
		return nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("postgres_dsn is required for postgres storage")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}
		d.checkouts = postgres.NewCheckoutRepository(store)
		d.outbox = postgres.NewOutboxRepository(store)
		d.timeline = postgres.NewTimelineRepository(store)
		d.storageChecker = healthcheck.NewPingChecker("storage", store.Ping)
		d.closers = append(d.closers, store.Close)
		poolStats := store.Collector()
		registerCollector(poolStats, logger)
		d.closers = append(d.closers, func() error {
			prometheus.Unregister(poolStats)
			return nil
		})
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return nil

	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d *runtimeDependencies) initCollaborators(cfg Config, logger *log.Entry) {
	breaker := client.BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}

	if cfg.StoreAPIURL == "" {
		// NOTE: без store API работаем на демо-магазине, включая справочник индексов.
		demo := storefront.NewDemoService()
		d.auth, d.addresses, d.postalCodes = demo, demo, demo
		d.shipping, d.orders, d.carts = demo, demo, demo
		logger.WithField("cart_id", storefront.DemoCartID).Warn("store_api_url is empty, using demo storefront")
	} else {
		api := storeapi.New(storeapi.Config{
			BaseURL:       cfg.StoreAPIURL,
			Timeout:       cfg.StoreAPITimeout,
			SubmitTimeout: cfg.SubmitTimeout,
			Breaker:       breaker,
		}, logger.WithField("collaborator", "store-api"))
		d.auth, d.addresses, d.shipping, d.orders, d.carts = api, api, api, api, api
		d.postalCodes = viacep.New(viacep.Config{
			BaseURL: cfg.ViaCEPURL,
			Timeout: cfg.StoreAPITimeout,
			Breaker: breaker,
		}, logger.WithField("collaborator", "viacep"))
		logger.WithField("store_api_url", cfg.StoreAPIURL).Info("store api clients initialized")
	}

	if cfg.RedisAddr == "" {
		return
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	cached := cache.NewPostalCodeDirectory(rdb, d.postalCodes, cfg.PostalCacheTTL, logger.WithField("component", "postal-code-cache"))
	d.postalCodes = cached
	d.cacheChecker = healthcheck.NewOptionalChecker("postal_code_cache", cached.Ping)
	d.closers = append(d.closers, rdb.Close)
	logger.WithField("redis_addr", cfg.RedisAddr).Info("postal code cache enabled")
}

// coordinatorDependencies отдаёт зависимости в формате координатора.
func (d *runtimeDependencies) coordinatorDependencies() checkout.Dependencies {
	return checkout.Dependencies{
		Checkouts:   d.checkouts,
		Outbox:      d.outbox,
		Timeline:    d.timeline,
		Auth:        d.auth,
		Addresses:   d.addresses,
		PostalCodes: d.postalCodes,
		Shipping:    d.shipping,
		Orders:      d.orders,
		Carts:       d.carts,
	}
}

// close освобождает ресурсы в обратном порядке.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}
