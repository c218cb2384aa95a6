package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apppayment "github.com/lunari/studio-ledger/internal/application/payment"
	appsession "github.com/lunari/studio-ledger/internal/application/session"
	"github.com/lunari/studio-ledger/internal/domain/catalog"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/infrastructure/cache"
	"github.com/lunari/studio-ledger/internal/infrastructure/changefeed"
	"github.com/lunari/studio-ledger/internal/infrastructure/config"
	"github.com/lunari/studio-ledger/internal/infrastructure/event"
	"github.com/lunari/studio-ledger/internal/infrastructure/logger"
	"github.com/lunari/studio-ledger/internal/infrastructure/migration"
	"github.com/lunari/studio-ledger/internal/infrastructure/persistence"
	"github.com/lunari/studio-ledger/internal/infrastructure/scheduler"
	"github.com/lunari/studio-ledger/internal/infrastructure/telemetry"
	"github.com/lunari/studio-ledger/internal/interfaces/http/handler"
	"github.com/lunari/studio-ledger/internal/interfaces/http/middleware"
	"github.com/lunari/studio-ledger/internal/interfaces/http/router"
	"github.com/lunari/studio-ledger/migrations"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	appVersion     = "1.0.0"
	sweepJobName   = "reconcile_sweep"
	healthPath     = "/health"
	shutdownBudget = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so the bridged logger exports from the start
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log = telemetry.Bridge(log, providers, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting studio ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("changefeed", cfg.ChangeFeed.Driver),
	)

	profiler, err := telemetry.StartProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
		SpanProfiles:    cfg.Telemetry.Enabled,
	}, providers, log)
	if err != nil {
		log.Warn("Profiler not started", zap.Error(err))
	}

	metrics, err := telemetry.NewLedgerMetrics(providers.Meter("studio-ledger"))
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Database.LogLevel),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		log.Warn("Database tracing not registered", zap.Error(err))
	}
	log.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		if err := migrate(db, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Redis backs the catalog cache and the redis change feed
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		if cfg.ChangeFeed.Driver == config.FeedDriverRedis {
			log.Fatal("Redis is required by the change feed", zap.Error(err))
		}
		log.Warn("Redis unavailable, catalog lookups are not cached", zap.Error(err))
	} else {
		defer func() {
			_ = redisClient.Close()
		}()
	}

	feed, publisher := newFeed(cfg, redisClient, log)

	// Repositories and domain services
	sessionRepo := persistence.NewGormSessionRepository(db.DB,
		persistence.WithChangePublisher(publisher),
		persistence.WithRepositoryLogger(log))
	txLog := persistence.NewGormTransactionLog(db.DB, publisher, log)

	var resolver catalog.Resolver = persistence.NewGormCatalogRepository(db.DB)
	if redisClient != nil {
		resolver = cache.NewCatalogCache(resolver, redisClient,
			cache.WithCatalogTTL(cfg.Ledger.CatalogCacheTTL),
			cache.WithCatalogLogger(log))
	}
	freezer := pricing.NewFreezer(resolver, pricing.WithFreezerLogger(log))

	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewLoggingHandler(log,
		session.EventTypeSessionCreated,
		session.EventTypeSessionTotalCorrected,
		session.EventTypeSessionArchived,
		session.EventTypeSessionDeleted,
	))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	store := appsession.NewLedgerStore(sessionRepo, resolver, freezer, log)
	sessionCache := appsession.NewSessionCache()
	coordinator := appsession.NewCoordinator(store, sessionCache,
		appsession.WithEventPublisher(eventBus),
		appsession.WithMetrics(metrics),
		appsession.WithEpsilon(cfg.Ledger.ReconcileEpsilon),
		appsession.WithCoordinatorLogger(log))
	ledgerReader := apppayment.NewLedgerReader(txLog)
	display := appsession.NewDisplayConverter(resolver, cfg.Ledger.Locale, log)

	listener := appsession.NewChangeListener(store, sessionCache, ledgerReader, metrics, log)
	listener.Register(feed)
	if err := feed.Start(ctx); err != nil {
		log.Fatal("Failed to start change feed", zap.Error(err))
	}
	warmCache(ctx, store, listener, log)

	// Reconciliation sweep
	cron := scheduler.New(scheduler.Config{Timeout: cfg.Reconcile.Timeout}, log)
	if cfg.Reconcile.Enabled {
		err := cron.Register(sweepJobName, cfg.Reconcile.Schedule, func(ctx context.Context) error {
			var sweepErr error
			telemetry.WithProfilingLabels(ctx, map[string]string{
				telemetry.ProfilingLabelOperation: sweepJobName,
			}, func(ctx context.Context) {
				sweepErr = coordinator.RunSweep(ctx)
			})
			return sweepErr
		})
		if err != nil {
			log.Fatal("Failed to register reconcile sweep", zap.Error(err))
		}
		if err := cron.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	}

	httpMetrics, err := middleware.HTTPMetrics(providers.Meter("studio-ledger/http"), "/api/v1"+router.StreamPath)
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}
	defaultStudio := uuid.Nil
	if cfg.App.DefaultStudioID != "" {
		defaultStudio = uuid.MustParse(cfg.App.DefaultStudioID)
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log, healthPath),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORS(corsConfig(cfg.HTTP)),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Tracing(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled),
		middleware.Studio(middleware.StudioConfig{Default: defaultStudio, SkipPaths: []string{healthPath}}),
		middleware.SpanEnricher(),
		middleware.Profiling(cfg.Telemetry.ProfilingEnabled, healthPath),
		httpMetrics,
	)

	sessionHandler := handler.NewSessionHandler(coordinator, sessionCache, store, ledgerReader, display)
	streamHandler := handler.NewSessionStreamHandler(sessionCache, handler.WithStreamLogger(log))
	checks := []handler.HealthCheck{
		{Name: "database", Check: db.Ping},
	}
	if redisClient != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	systemHandler := handler.NewSystemHandler(cfg.App.Name, appVersion, sessionCache.Len, checks...).
		WithPoolStats(db.Stats)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(router.SessionRoutes(sessionHandler, streamHandler)).
		Register(router.SystemRoutes(systemHandler))
	r.Setup()
	router.MountHealth(engine, systemHandler)
	log.Debug("Routes registered", zap.Strings("routes", r.Routes()))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()

	// streams first, otherwise Shutdown waits on them
	streamHandler.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := cron.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduler stop", zap.Error(err))
	}
	if err := feed.Stop(shutdownCtx); err != nil {
		log.Warn("Change feed stop", zap.Error(err))
	}
	_ = eventBus.Stop(shutdownCtx)
	if profiler != nil {
		_ = profiler.Stop()
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newFeed builds the configured change feed. The returned publisher is
// what repositories announce writes on; it is nil for the postgres feed,
// whose notifications come from database triggers.
func newFeed(cfg *config.Config, client *redis.Client, log *zap.Logger) (changefeed.Feed, changefeed.Publisher) {
	switch cfg.ChangeFeed.Driver {
	case config.FeedDriverPostgres:
		channel := cfg.ChangeFeed.Channel
		if channel == "" {
			channel = changefeed.DefaultPostgresChannel
		}
		return changefeed.NewPostgresFeed(cfg.Database.DSN(), channel, log), nil
	case config.FeedDriverRedis:
		opts := []changefeed.RedisFeedOption{changefeed.WithRedisLogger(log)}
		if cfg.ChangeFeed.Channel != "" {
			opts = append(opts, changefeed.WithRedisChannel(cfg.ChangeFeed.Channel))
		}
		feed := changefeed.NewRedisFeed(client, opts...)
		return feed, feed
	default:
		feed := changefeed.NewInMemoryFeed(log, cfg.ChangeFeed.BufferSize)
		return feed, feed
	}
}

// migrate applies the embedded schema migrations
func migrate(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.SQL()
	if err != nil {
		return err
	}
	m, err := migration.NewEmbedded(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	// closing the migrator would close the shared pool
	return m.Up()
}

// warmCache loads every unarchived session into the cache. A session that
// fails to load is skipped; the change feed or a later lookup brings it in.
func warmCache(ctx context.Context, store *appsession.LedgerStore, listener *appsession.ChangeListener, log *zap.Logger) {
	ids, err := store.UnarchivedIDs(ctx)
	if err != nil {
		log.Warn("Session cache not warmed", zap.Error(err))
		return
	}
	sessions := make([]session.Session, 0, len(ids))
	for _, id := range ids {
		s, err := store.Get(ctx, id)
		if err != nil {
			log.Warn("Session skipped while warming cache", zap.String("session_id", id.String()), zap.Error(err))
			continue
		}
		sessions = append(sessions, *s)
	}
	listener.Load(ctx, sessions)
	log.Info("Session cache warmed", zap.Int("sessions", len(sessions)))
}

func corsConfig(cfg config.HTTPConfig) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORSAllowOrigins
	if len(cfg.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.CORSAllowHeaders
	}
	return cors
}
