package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/cutdeck/internal/application/graphs"
	"github.com/aescanero/cutdeck/internal/application/orchestrator"
	"github.com/aescanero/cutdeck/internal/application/workers"
	"github.com/aescanero/cutdeck/internal/config"
	eventsmem "github.com/aescanero/cutdeck/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/cutdeck/pkg/adapters/events/redis"
	"github.com/aescanero/cutdeck/pkg/adapters/metrics/prometheus"
	storagemem "github.com/aescanero/cutdeck/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/cutdeck/pkg/adapters/storage/redis"
	"github.com/aescanero/cutdeck/pkg/adapters/tracing"
	"github.com/aescanero/cutdeck/pkg/api/grpc"
	"github.com/aescanero/cutdeck/pkg/api/http"
	"github.com/aescanero/cutdeck/pkg/api/websocket"
	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/aescanero/cutdeck/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting Cutdeck",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("environment", cfg.Environment))

	ctx := context.Background()

	// Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "cutdeck",
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		Exporter:       cfg.Tracing.Exporter,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}

	// Initialize Redis client when a backend needs it
	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		// Test Redis connection
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize adapters
	eventBus, err := newEventBus(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal("failed to create event bus", zap.Error(err))
	}

	runStorage := newRunStorage(cfg, redisClient, logger)
	metricsCollector := prometheus.NewCollector()

	// Initialize application components
	orchestratorMgr := orchestrator.NewManager(
		graphs.Default(),
		eventBus,
		runStorage,
		metricsCollector,
		logger,
		orchestrator.ManagerConfig{
			MaxRounds:   cfg.Pregel.MaxRounds,
			Parallelism: cfg.Pregel.Parallelism,
			RunTimeout:  cfg.Timeouts.RunExecutionTimeout,
		},
	)

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		eventBus,
		orchestratorMgr,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Worker health drives the gRPC health service
	workerPool.Health().OnStatus(func(status *workers.HealthStatus) {
		grpcServer.SetServing(status.Healthy)
	})

	// Start worker pool
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orchestratorMgr,
		Logger:       logger,
		Version:      Version,
		Workers:      workerPool.Health(),
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, orchestratorMgr, logger)
	httpServer.SetupWebSocket(wsHandler)

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("Cutdeck started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("events_backend", cfg.EventsBackend),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	// Shutdown components
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("Cutdeck shut down complete")
}

// newEventBus selects the configured event bus backend
func newEventBus(cfg *config.Config, client *goredis.Client, logger *zap.Logger) (ports.EventBus, error) {
	if cfg.EventsBackend != config.BackendRedis {
		return eventsmem.NewInMemoryEventBus(), nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "cutdeck"
	}

	return eventsredis.NewStreamsEventBus(
		client,
		"cutdeck-workers",
		fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		logger,
		domain.TopicRunRequests,
	)
}

// newRunStorage selects the configured run storage backend
func newRunStorage(cfg *config.Config, client *goredis.Client, logger *zap.Logger) ports.RunStorage {
	if cfg.StorageBackend != config.BackendRedis {
		return storagemem.NewInMemoryRunStorage()
	}
	return storageredis.NewRunStorage(client, cfg.Redis.RunRetention, logger)
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
