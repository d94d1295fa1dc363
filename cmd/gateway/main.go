package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lumenlms/federation-gateway/internal/admission"
	"github.com/lumenlms/federation-gateway/internal/apq"
	"github.com/lumenlms/federation-gateway/internal/audit"
	"github.com/lumenlms/federation-gateway/internal/auth"
	"github.com/lumenlms/federation-gateway/internal/config"
	"github.com/lumenlms/federation-gateway/internal/database"
	"github.com/lumenlms/federation-gateway/internal/observability"
	"github.com/lumenlms/federation-gateway/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Persisted-query registry, selected by APQ_STORE.
	var registry apq.Registry
	var readiness observability.ReadinessChecker
	switch cfg.APQStore {
	case config.APQStorePostgres:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Error("run migrations", "error", err)
			os.Exit(1) //nolint:gocritic // startup exits before meaningful defers
		}
		pool, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		registry = apq.NewPostgresRegistry(pool)
		readiness = database.NewPoolReadiness(pool)
	case config.APQStoreRedis:
		redisRegistry := apq.NewRedisRegistry(cfg.RedisAddr)
		defer func() {
			if err := redisRegistry.Close(); err != nil {
				logger.Error("redis close", "error", err)
			}
		}()
		registry = redisRegistry
		readiness = redisRegistry
	default:
		registry = apq.NewMemoryRegistry()
	}

	limiter := ratelimit.New(
		cfg.RateLimitMax,
		cfg.RateLimitWindow,
		cfg.RateLimitMaxStoreSize,
		cfg.RateLimitSweepInterval,
		metrics,
		logger,
	)
	limiter.Start()
	defer limiter.Stop()

	group, groupCtx := errgroup.WithContext(ctx)

	var auditor admission.Auditor
	if cfg.AuditEnabled() {
		publisher := audit.NewPublisher(cfg.AuditKafkaBrokers, cfg.AuditKafkaTopic, metrics, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("audit publisher close", "error", err)
			}
		}()
		group.Go(func() error { return publisher.Run(groupCtx) })
		auditor = publisher
	}

	pipeline := admission.NewPipeline(admission.Config{
		Registry:             registry,
		Limiter:              limiter,
		Identity:             auth.NewExtractor(cfg.TrustedProxies),
		Executor:             admission.NewHTTPExecutor(cfg.UpstreamURL, logger),
		Audit:                auditor,
		MaxDepth:             cfg.MaxDepth,
		MaxComplexity:        cfg.MaxComplexity,
		PersistedQueriesOnly: cfg.PersistedQueriesOnly,
		Logger:               logger,
		Metrics:              metrics,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)
	r.Use(observability.MetricsMiddleware(metrics))
	if cfg.ConcurrencyLimit > 0 {
		r.Use(admission.ConcurrencyLimit(cfg.ConcurrencyLimit))
	}
	r.Handle("/graphql", pipeline)
	r.Get("/healthz", observability.LivenessHandler())
	r.Get("/readyz", observability.ReadinessHandler(readiness))
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           http.TimeoutHandler(r, 25*time.Second, `{"errors":[{"message":"request timeout"}]}`),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("gateway started", "port", cfg.Port, "apq_store", cfg.APQStore,
		"persisted_only", cfg.PersistedQueriesOnly)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	cancel()
	if err := group.Wait(); err != nil {
		logger.Error("background worker", "error", err)
	}
	logger.Info("shutdown complete")
}
