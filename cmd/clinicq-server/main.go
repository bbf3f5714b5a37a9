package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/clinicq/pkg/api"
	"github.com/platinummonkey/clinicq/pkg/audit"
	"github.com/platinummonkey/clinicq/pkg/config"
	"github.com/platinummonkey/clinicq/pkg/middleware"
	"github.com/platinummonkey/clinicq/pkg/observability"
	"github.com/platinummonkey/clinicq/pkg/queue"
	"github.com/platinummonkey/clinicq/pkg/storage"
	"github.com/platinummonkey/clinicq/pkg/storage/postgres"
)

var version = "dev"

func main() {
	actorHeader := flag.String("actor-header", "", "Trust this header for the acting user id (set by an authenticating gateway)")
	flag.Parse()

	// Bootstrap logger until the configured one exists
	boot := setupLogger(os.Getenv("CLINICQ_LOG_LEVEL"))
	boot.Infof("Starting clinicq server %s", version)

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(cfg, *actorHeader); err != nil {
		boot.Fatalf("Server failed: %v", err)
	}
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func run(cfg *config.Config, actorHeader string) error {
	ctx := context.Background()
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, cfg.OTelConfig(), logger)
	if err != nil {
		return err
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	poolConfig := cfg.PoolConfig()
	shared, err := postgres.OpenDB(ctx, cfg.Database.SharedURL, poolConfig)
	if err != nil {
		return fmt.Errorf("shared database: %w", err)
	}
	if err := audit.EnsureSchema(ctx, shared); err != nil {
		shared.Close()
		return err
	}

	directory, err := buildDirectory(cfg, shared)
	if err != nil {
		shared.Close()
		return err
	}

	var redisClient *redis.Client
	if cfg.Directory.RedisURL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, cfg.Directory.RedisURL)
		if err != nil {
			shared.Close()
			return err
		}
		directory = postgres.NewCachedDirectory(directory, redisClient, cfg.Directory.CacheTTL, metrics)
		shutdown.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
		logger.Info("Tenant directory cache enabled")
	}

	pool, err := postgres.NewTenantPool(shared, directory, poolConfig,
		postgres.WithOnOpen(prepareTenant),
		postgres.WithPoolMetrics(metrics),
		postgres.WithPoolLogger(logger.Named("tenant-pool")),
	)
	if err != nil {
		shared.Close()
		return err
	}
	shutdown.Register("tenant-pool", func(ctx context.Context) error {
		return pool.Close()
	})

	auditLogger := logger.Named("audit")
	recorder := audit.NewRecorder(audit.NewRouter(audit.NewSQLResolver(pool)),
		audit.WithLogger(auditLogger),
		audit.WithMetrics(metrics),
		audit.WithTracer(observability.Tracer()),
	)
	hooks := audit.NewHookAdapter(recorder,
		audit.WithMode(cfg.Audit.Mode),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
		audit.WithHookLogger(auditLogger),
		audit.WithHookMetrics(metrics),
	)
	// pending async writes must land before the pool closes
	shutdown.Register("audit-hooks", hooks.Wait)

	actor := middleware.PrincipalActor
	if actorHeader != "" {
		actor = middleware.HeaderActor(actorHeader)
	}

	service := queue.NewService(pool, storage.NewMutator(pool, hooks))
	router := api.NewRouter(api.RouterConfig{
		Queues:    service,
		Directory: directory,
		Actor:     actor,
		Logger:    logger,
		Metrics:   metrics,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(router, "clinicq.api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(shared, redisClient, pool, version))
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}

	shutdown.Register("http", func(ctx context.Context) error {
		return errors.Join(apiServer.Shutdown(ctx), healthServer.Shutdown(ctx))
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		return serve(healthServer)
	})
	g.Go(func() error {
		return shutdown.WaitForSignal(gctx)
	})

	return g.Wait()
}

func buildDirectory(cfg *config.Config, shared *sql.DB) (postgres.Directory, error) {
	switch cfg.Directory.Type {
	case config.DirectoryFile:
		return postgres.LoadStaticDirectory(cfg.Directory.File)
	default:
		return postgres.NewSQLDirectory(shared), nil
	}
}

// prepareTenant runs once for every newly opened tenant database
func prepareTenant(ctx context.Context, db *sql.DB) error {
	if err := audit.EnsureSchema(ctx, db); err != nil {
		return err
	}
	return queue.EnsureSchema(ctx, db)
}

func serve(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
