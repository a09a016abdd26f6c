package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/cache"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/event"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/persistence"
	"github.com/syncbridge/backend/internal/infrastructure/queue"
	"github.com/syncbridge/backend/internal/infrastructure/scheduler"
	"github.com/syncbridge/backend/internal/infrastructure/storage"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"github.com/syncbridge/backend/internal/infrastructure/webhook"
	"github.com/syncbridge/backend/internal/interfaces/http/handler"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
	"github.com/syncbridge/backend/internal/interfaces/http/router"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// Telemetry first so the remaining startup is exported too
	otelProviders, err := telemetry.Setup(ctx, telemetry.ExportConfig{
		ServiceName:     cfg.Telemetry.ServiceName,
		Endpoint:        cfg.Telemetry.CollectorEndpoint,
		Insecure:        cfg.Telemetry.Insecure,
		Traces:          cfg.Telemetry.Enabled,
		SamplingRatio:   cfg.Telemetry.SamplingRatio,
		Metrics:         cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		MetricsInterval: cfg.Telemetry.MetricsInterval,
		Logs:            cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		SpanProfiles:    cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.SpanProfiles,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	if otelProviders.LogsEnabled() {
		otelCore := otelProviders.LogCore(logger.ParseLevel(cfg.Log.Level))
		log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, otelCore)
		}))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.Profiling.Enabled,
		ServerAddress:     cfg.Telemetry.Profiling.ServerAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Telemetry.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Telemetry.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}

	log.Info("Starting sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)
	meter := otelProviders.Meter()

	// Initialize database connection with the zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithFullSQL(cfg.Telemetry.DBLogFullSQL),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := migrateSchema(db, log); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}
	if err := instrumentDatabase(db, cfg.Telemetry, meter, log); err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", db.Driver))

	// Repositories
	entityStore := persistence.NewGormSyncEntityStore(db.DB)
	watermarkRepo := persistence.NewGormWatermarkRepository(db.DB)
	syncRunRepo := persistence.NewGormSyncRunRepository(db.DB)

	adapters, err := buildAdapters(cfg.Providers, log)
	if err != nil {
		log.Fatal("Failed to configure remote adapters", zap.Error(err))
	}

	// Redis is optional; without it coordination falls back to process-local state
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr()))
		}
		redisClient = client
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}
	coordination := cache.NewCoordination(redisClient, log)
	idempotency := coordination.IdempotencyStore()

	taskQueue, err := queue.New(cfg.Queue, redisClient, log)
	if err != nil {
		log.Fatal("Failed to create task queue", zap.Error(err))
	}

	// Event bus dispatches through the task queue so handlers never run on the sync path
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)
	eventBus := event.NewInMemoryEventBus(log, event.WithDispatchQueue(taskQueue, eventSerializer))

	syncMetrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}

	policy := integration.CircuitBreakerPolicy{
		WarnThreshold:    cfg.Sync.WarnThreshold,
		HighThreshold:    cfg.Sync.HighThreshold,
		DisableThreshold: cfg.Sync.DisableThreshold,
	}

	// Application services
	coordinator := appintegration.NewSyncCoordinator(adapters, entityStore, watermarkRepo, eventBus,
		appintegration.CoordinatorConfig{
			BatchSize:         cfg.Sync.BatchSize,
			PageSize:          cfg.Sync.PageSize,
			FullSyncPageDelay: cfg.Sync.FullSyncPageDelay,
			RefreshLimit:      cfg.Sync.RefreshLimit,
			RevalidationLimit: cfg.Sync.RevalidationLimit,
			RunLockTTL:        cfg.Sync.RunLockTTL,
			CircuitBreaker:    policy,
		},
		log,
		appintegration.WithRunLocker(coordination.RunLocker()),
		appintegration.WithSyncMetrics(syncMetrics),
		appintegration.WithSyncRunRepository(syncRunRepo),
	)

	pushService := appintegration.NewPushService(adapters, entityStore, eventBus, coordinator.Normalizer(), policy, log)
	pushService.SetMetrics(syncMetrics)
	eventBus.Subscribe(event.NewIdempotentHandler(pushService, idempotency, log,
		event.WithKeyPrefix("push"),
		event.WithDeliveryRecorder(syncMetrics),
	))
	log.Info("Event handlers registered", zap.Strings("push_events", pushService.EventTypes()))

	localEditService := appintegration.NewLocalEditService(entityStore, eventBus, coordinator.Normalizer(), coordinator.Differ(), log)

	webhookService := appintegration.NewWebhookService(adapters, coordinator, idempotency, taskQueue,
		appintegration.WebhookServiceConfig{DedupWindow: cfg.Sync.DedupWindow}, log)
	webhookService.SetMetrics(syncMetrics)
	if cfg.Archive.Enabled {
		archive, err := storage.NewS3PayloadArchive(ctx, cfg.Archive, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create payload archive", zap.Error(err))
		}
		webhookService.SetArchive(archive)
		log.Info("Failed webhook payloads will be archived", zap.String("bucket", cfg.Archive.Bucket))
	}

	queryService := appintegration.NewSyncQueryService(adapters, entityStore, watermarkRepo, syncRunRepo)

	// Scheduler
	syncScheduler, err := scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfig{
		MaxConcurrentJobs: cfg.Sync.Workers,
		QueueSize:         cfg.Sync.Workers * 10,
		JobTimeout:        cfg.Sync.JobTimeout,
		RetryAttempts:     cfg.Sync.RetryAttempts,
		RetryDelay:        cfg.Sync.RetryDelay,
		MaxHistory:        500,
	}, scheduler.NewSyncExecutor(coordinator, pushService, log), log)
	if err != nil {
		log.Fatal("Failed to create sync scheduler", zap.Error(err))
	}
	cronTrigger := scheduler.NewSyncCronTrigger(scheduler.SyncCronTriggerConfig{
		CheckInterval: time.Minute,
		Intervals: map[scheduler.JobMode]time.Duration{
			scheduler.JobModeIncremental: cfg.Sync.IncrementalInterval,
			scheduler.JobModeFull:        cfg.Sync.FullInterval,
			scheduler.JobModeRefresh:     cfg.Sync.RefreshInterval,
			scheduler.JobModePushSweep:   cfg.Sync.PushSweepInterval,
		},
	}, syncScheduler, adapters, log)

	// Webhook verification
	verifiers, err := buildVerifiers(cfg.Webhook, adapters, log)
	if err != nil {
		log.Fatal("Failed to configure webhook verifiers", zap.Error(err))
	}
	schemaValidator, err := webhook.NewSchemaValidator()
	if err != nil {
		log.Fatal("Failed to compile webhook schemas", zap.Error(err))
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(meter))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.CORSAllowOrigins,
		AllowMethods: cfg.HTTP.CORSAllowMethods,
		AllowHeaders: cfg.HTTP.CORSAllowHeaders,
		MaxAge:       12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.HTTP.RateLimitRequests > 0 {
		engine.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)))
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("database", func(context.Context) error { return db.Ping() })
	if redisClient != nil {
		systemHandler.AddCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	engine.GET("/health", systemHandler.Health)

	syncHandler := handler.NewSyncHandler(cronTrigger, syncScheduler, coordinator, queryService, localEditService)
	webhookHandler := handler.NewWebhookHandler(webhookService, verifiers, schemaValidator, cfg.Webhook.MaxBodySize, log)

	r := router.NewRouter(engine, router.WithAPIMiddleware(middleware.AdminToken(cfg.HTTP.AdminToken, log)))
	r.Register(syncHandler.Routes()).
		Register(systemHandler.Routes()).
		RegisterRoot(webhookHandler.Routes())
	routes := r.Setup()
	log.Info("HTTP routes registered", zap.Int("routes", len(routes)))

	// Start background components; the queue must run before anything enqueues
	if err := taskQueue.Start(ctx); err != nil {
		log.Fatal("Failed to start task queue", zap.Error(err))
	}
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	if err := syncScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}
	if cfg.Sync.SchedulerEnabled {
		if err := cronTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sync cron trigger", zap.Error(err))
		}
		log.Info("Periodic sync enabled", zap.Any("entity_types", adapters.EntityTypes()))
	}

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop producers before the queue they feed
	stopAll(shutdownCtx, log,
		stopStep{"sync cron trigger", func(ctx context.Context) error {
			if !cfg.Sync.SchedulerEnabled {
				return nil
			}
			return cronTrigger.Stop(ctx)
		}},
		stopStep{"sync scheduler", syncScheduler.Stop},
		stopStep{"event bus", eventBus.Stop},
		stopStep{"task queue", taskQueue.Stop},
		stopStep{"redis", func(context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Close()
		}},
		stopStep{"database", func(context.Context) error { return db.Close() }},
		stopStep{"profiler", profiler.Stop},
		stopStep{"telemetry", otelProviders.Shutdown},
	)

	log.Info("Server exited gracefully")
}
