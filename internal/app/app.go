// Package app собирает checkout-service: хранилище, клиентов магазина, координатор,
// REST API, служебные HTTP и gRPC серверы и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/checkout/internal/checkout"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/cleanup"
	"github.com/vladislavdragonenkov/checkout/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

const (
	shutdownTimeout    = 5 * time.Second
	healthSyncInterval = 10 * time.Second
)

// Run запускает сервис и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	checkoutMetrics := metrics.NewCheckoutMetrics()
	coord := checkout.NewCoordinator(
		deps.coordinatorDependencies(),
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithMetrics(checkoutMetrics),
		checkout.WithSubmitTimeout(cfg.SubmitTimeout),
	)

	// Kafka опциональна: без неё события остаются в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.kafkaBrokerList(), logger)
	defer closeKafkaProducer(kafkaProducer, logger)
	outboxCancel, outboxDone := startOutboxWorker(ctx, cfg, deps.outbox, kafkaProducer, logger)
	defer shutdownOutboxWorker(outboxCancel, outboxDone, logger)

	cleanupCancel, cleanupDone := startCleanupWorker(ctx, cfg, deps, checkoutMetrics, logger)
	defer shutdownCleanupWorker(cleanupCancel, cleanupDone, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("postal_code_cache", deps.cacheChecker)
	if kafkaProducer != nil {
		healthHandler.RegisterChecker("outbox", healthcheck.NewOptionalChecker("outbox", func(ctx context.Context) error {
			_, err := deps.outbox.Stats(ctx)
			return err
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	api := httpapi.NewHandler(coord,
		httpapi.WithLogger(logger.WithField("component", "http-api")),
		httpapi.WithRequestTimeout(cfg.RequestTimeout),
	)
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	apiSrv := &http.Server{
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, healthServer := newOpsGRPCServer(logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		return err
	}

	syncCtx, stopSync := context.WithCancel(ctx)
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		healthHandler.SyncGRPC(syncCtx, healthServer, healthSyncInterval)
	}()
	defer func() {
		stopSync()
		<-syncDone
	}()

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("checkout API слушает %s", apiLis.Addr())
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Infof("gRPC health сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stopSync()
		<-syncDone
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, logger)
		return err
	}
}

// registerCollector регистрирует коллектор в default registry.
// Если такой уже есть (повторный Run в тестах), возвращает существующий.
func registerCollector(c prometheus.Collector, logger *log.Entry) prometheus.Collector {
	err := prometheus.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector
	}
	logger.WithError(err).Warn("failed to register prometheus collector")
	return c
}

// newOpsGRPCServer поднимает gRPC сервер со стандартным health-сервисом и reflection.
func newOpsGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if existing, ok := registerCollector(grpcMetrics, logger).(*promgrpc.ServerMetrics); ok {
		grpcMetrics = existing
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)
	return grpcServer, healthServer
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// startCleanupWorker периодически удаляет брошенные сессии.
func startCleanupWorker(ctx context.Context, cfg Config, deps *runtimeDependencies, m *metrics.CheckoutMetrics, logger *log.Entry) (context.CancelFunc, <-chan struct{}) {
	worker := cleanup.NewSessionWorker(deps.checkouts,
		cleanup.WithLogger(logger.WithField("component", "session-cleanup")),
		cleanup.WithTimeline(deps.timeline),
		cleanup.WithMetrics(m),
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithSessionTTL(cfg.SessionTTL),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

func shutdownCleanupWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
	logger.Info("session cleanup worker stopped")
}

// startMetricsServer запускает служебный HTTP: /metrics, /healthz, /readyz, /livez.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
