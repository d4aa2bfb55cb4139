package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stratoserve/catalog-cache/internal/bus"
	"github.com/stratoserve/catalog-cache/internal/cache"
	"github.com/stratoserve/catalog-cache/internal/config"
	"github.com/stratoserve/catalog-cache/internal/handler"
	"github.com/stratoserve/catalog-cache/internal/health"
	"github.com/stratoserve/catalog-cache/internal/logging"
	"github.com/stratoserve/catalog-cache/internal/metrics"
	"github.com/stratoserve/catalog-cache/internal/server"
	"github.com/stratoserve/catalog-cache/internal/service"
	"github.com/stratoserve/catalog-cache/internal/store"
)

func main() {
	// Bootstrap logger until the configured one is built
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	logger.Info("Starting catalog-cache service")

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	configured, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		logger.Fatal("Failed to build logger", zap.Error(err))
	}
	logger = configured
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("instance_id", cfg.Server.InstanceID),
		zap.Int("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("invalidation_channel", cfg.Redis.Channel))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	// Initialize record store (PostgreSQL)
	recordStore, err := store.NewPostgresRecordStore(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Retry.MaxAttempts,
		cfg.Retry.BaseBackoff,
		m.ConflictRetries,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize record store", zap.Error(err))
	}
	defer recordStore.Close()

	if err := recordStore.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("Failed to ensure schema", zap.Error(err))
	}
	logger.Info("Record store initialized")

	// Initialize shared cache (Redis)
	sharedCache, err := store.NewRedisCacheStore(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		cfg.Redis.MinIdleConns,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize shared cache", zap.Error(err))
	}
	defer sharedCache.Close()
	logger.Info("Shared cache initialized")

	// The local cache lives exactly as long as the process; everything that
	// needs it receives this one instance.
	localCache := cache.New()

	// Initialize invalidation bus on the shared Redis client
	invalidationBus := bus.NewRedisBus(sharedCache.Client(), cfg.Redis.Channel, cfg.Server.InstanceID, logger)

	// Initialize record service
	recordService := service.NewRecordService(
		recordStore,
		localCache,
		sharedCache,
		invalidationBus,
		cfg.Cache.RecordTTL,
		m,
		logger,
	)
	logger.Info("Record service initialized")

	// Start the invalidation subscriber; it lives until shutdown
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	invalidationBus.Subscribe(subCtx, recordService.HandleInvalidation)

	// Initialize HTTP server
	handlers := handler.NewHandlers(recordService, m, logger)
	healthChecker := health.NewHealthChecker(recordStore, sharedCache, logger)
	srv := server.NewServer(cfg, handlers, healthChecker, logger)
	srv.SetupRoutes()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	subCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down HTTP server cleanly", zap.Error(err))
	}

	logger.Info("catalog-cache service stopped")
}
