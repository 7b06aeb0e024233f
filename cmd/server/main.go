package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	acctapp "github.com/erp/retailcore/internal/application/accounting"
	eventapp "github.com/erp/retailcore/internal/application/event"
	"github.com/erp/retailcore/internal/application/reconcile"
	salesapp "github.com/erp/retailcore/internal/application/sales"
	shiftapp "github.com/erp/retailcore/internal/application/shift"
	stockapp "github.com/erp/retailcore/internal/application/stock"
	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/infrastructure/cache"
	"github.com/erp/retailcore/internal/infrastructure/config"
	"github.com/erp/retailcore/internal/infrastructure/event"
	"github.com/erp/retailcore/internal/infrastructure/lock"
	"github.com/erp/retailcore/internal/infrastructure/logger"
	"github.com/erp/retailcore/internal/infrastructure/migration"
	"github.com/erp/retailcore/internal/infrastructure/persistence"
	"github.com/erp/retailcore/internal/infrastructure/telemetry"
	"github.com/erp/retailcore/internal/interfaces/http/handler"
	"github.com/erp/retailcore/internal/interfaces/http/middleware"
	"github.com/erp/retailcore/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logCfg := logger.ConfigFor(cfg.App.Env)
	logCfg.Level, logCfg.Format, logCfg.Output = cfg.Log.Level, cfg.Log.Format, cfg.Log.Output
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// Telemetry providers are no-ops when disabled
	otelProviders, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    serviceVersion,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log = otelProviders.BridgeLogger(log)
	defer func() {
		_ = logger.Sync(log)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	log.Info("Starting retail engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	gormCfg := logger.DefaultGormConfig(cfg.Log.Level)
	gormCfg.SlowThreshold = cfg.Telemetry.DBSlowQueryThresh
	gormLog := logger.NewGormLogger(log, gormCfg)

	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := migrateSchema(db, log); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}

	dbInstrumentation, err := telemetry.InstrumentDB(db.DB, otelProviders.Meter(), telemetry.DBConfig{
		Tracing:            cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		Metrics:            cfg.Telemetry.Enabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		DBSystem:           db.Driver(),
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	defer dbInstrumentation.Stop()

	// Redis backs the shift-open lock and event idempotency when enabled
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, falling back to process-local lock and idempotency", zap.Error(err))
		} else {
			redisClient = client
			defer func() {
				if err := client.Close(); err != nil {
					log.Error("Error closing Redis client", zap.Error(err))
				}
			}()
		}
	}
	var locker shiftapp.Locker = lock.NewLocalLocker()
	if redisClient != nil {
		locker = lock.NewRedisLocker(redisClient, log)
	}
	idempotencyStore := cache.NewIdempotencyStore(redisClient, log)

	// Initialize event serializer and the transactional outbox
	eventSerializer := event.NewRegisteredSerializer()
	outboxPublisher := event.NewOutboxPublisher(eventSerializer, event.WithMaxRetries(cfg.Event.MaxRetries))
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Initialize repositories
	accountRepo := persistence.NewGormAccountRepository(db.DB)
	txRepo := persistence.NewGormTransactionRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	summaryRepo := persistence.NewGormSummaryRepository(db.DB)
	batchRepo := persistence.NewGormBatchRepository(db.DB)
	unitRepo := persistence.NewGormUnitRepository(db.DB)
	saleRepo := persistence.NewGormSaleRepository(db.DB)
	warrantyRepo := persistence.NewGormWarrantyRepository(db.DB)
	shiftRepo := persistence.NewGormShiftRepository(db.DB)
	operationRepo := persistence.NewGormOperationRepository(db.DB)
	discrepancyRepo := persistence.NewGormDiscrepancyRepository(db.DB)
	catalog := persistence.NewGormCatalogLookup(db.DB)
	customers := persistence.NewGormCustomerLookup(db.DB)

	scope := persistence.NewGormTransactionScope(db.DB, outboxPublisher)
	runner := unitofwork.NewRunner(scope, operationRepo, log)

	payments, err := newPaymentRegistry(&cfg.Payments)
	if err != nil {
		log.Fatal("Invalid payment configuration", zap.Error(err))
	}

	// Initialize application services
	saleService := salesapp.NewService(runner, saleRepo, catalog, customers, payments, log)
	shiftService := shiftapp.NewService(runner, shiftRepo, locker, cfg.Shift.OpenLockTTL, log)
	accountService := acctapp.NewService(scope, accountRepo, txRepo, log)
	stockService := stockapp.NewService(scope, ledgerRepo, summaryRepo, batchRepo, unitRepo, log)
	reconcileService := reconcile.NewService(scope, operationRepo, discrepancyRepo, ledgerRepo, summaryRepo,
		batchRepo, accountRepo, txRepo, reconcile.Config{
			PendingAge: cfg.Reconcile.PendingAge,
			BatchSize:  cfg.Reconcile.BatchSize,
		}, log)
	outboxService := eventapp.NewOutboxService(outboxRepo, log)

	if cfg.Telemetry.Enabled {
		businessMetrics, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
			Meter:         otelProviders.Meter().Meter("retailcore/business"),
			Logger:        log,
			StockProvider: telemetry.NewGormStockMetricsProvider(db.DB),
		})
		if err != nil {
			log.Warn("Failed to initialize business metrics", zap.Error(err))
		} else {
			saleService.SetBusinessMetrics(businessMetrics)
			shiftService.SetBusinessMetrics(businessMetrics)
			reconcileService.SetBusinessMetrics(businessMetrics)
			businessMetrics.StartPeriodicCollection(ctx, cfg.Telemetry.MetricsInterval)
			defer businessMetrics.Stop()
		}
	}

	// Event bus delivers committed outbox events to in-process handlers
	eventBus := event.NewInMemoryEventBus(log)
	warrantyHandler := event.NewIdempotentHandler(
		salesapp.NewWarrantyHandler(saleRepo, warrantyRepo, log),
		idempotencyStore,
		log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true}),
	)
	eventBus.Subscribe(warrantyHandler)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Event.ProcessorEnabled {
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, event.OutboxProcessorConfig{
			BatchSize:            cfg.Event.BatchSize,
			PollInterval:         cfg.Event.PollInterval,
			RetryInitialInterval: cfg.Event.RetryInitial,
			RetryMaxInterval:     cfg.Event.RetryMax,
			CleanupEnabled:       cfg.Event.CleanupEnabled,
			CleanupRetention:     cfg.Event.CleanupRetention,
			CleanupInterval:      time.Hour,
		}, log)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
	}

	if cfg.Reconcile.Enabled {
		worker := reconcile.NewWorker(reconcileService, cfg.Reconcile.Interval, log)
		if err := worker.Start(ctx); err != nil {
			log.Fatal("Failed to start reconciler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := worker.Stop(stopCtx); err != nil {
				log.Error("Error stopping reconciler", zap.Error(err))
			}
		}()
	}

	pingers := map[string]handler.Pinger{
		"database": db.Ping,
	}
	if redisClient != nil {
		pingers["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	handlers := handler.Handlers{
		Sales:         handler.NewSaleHandler(saleService),
		Shifts:        handler.NewShiftHandler(shiftService),
		Accounts:      handler.NewAccountHandler(accountService),
		Stock:         handler.NewStockHandler(stockService),
		Discrepancies: handler.NewDiscrepancyHandler(reconcileService),
		Outbox:        handler.NewOutboxHandler(outboxService),
		System:        handler.NewSystemHandler(cfg.App.Name, pingers),
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Tracing - Start the server span
	// 3. Recovery - Catch panics
	// 4. Logger - Log requests
	// 5. Security and CORS headers
	// 6. BodyLimit and Timeout
	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, logger.AccessLogConfig{SkipPaths: []string{"/health", "/healthz"}}))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.HTTP.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
	}
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: otelProviders.Meter(),
			ServiceName:   cfg.Telemetry.ServiceName,
			Enabled:       true,
		}))
	}

	engine.GET("/health", handlers.System.Health)
	engine.GET("/healthz", handlers.System.Health)

	// API routes require an acting operator
	apiMiddleware := []gin.HandlerFunc{
		middleware.OperatorMiddlewareWithConfig(middleware.OperatorMiddlewareConfig{
			SkipPaths: []string{"/api/v1/system/ping", "/api/v1/system/info"},
			Required:  true,
			Logger:    log,
		}),
		middleware.TracingAttributeInjector(),
		middleware.SpanErrorMarker(),
	}
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		apiMiddleware = append(apiMiddleware, middleware.RateLimitByKey(limiter, func(c *gin.Context) string {
			if id := middleware.GetOperatorID(c); id != "" {
				return "operator:" + id
			}
			return "ip:" + c.ClientIP()
		}))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	r := router.NewRouter(engine).Use(apiMiddleware...)
	for _, registrar := range handlers.Registrars() {
		r.Register(registrar)
	}
	r.Setup()

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
		return
	}

	log.Info("Server exited gracefully")
}

// migrateSchema applies versioned migrations on PostgreSQL and
// AutoMigrate on SQLite, which the SQL migrations do not target.
func migrateSchema(db *persistence.Database, log *zap.Logger) error {
	if db.Driver() != persistence.DriverPostgres {
		return persistence.AutoMigrate(db.DB)
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, nil, log)
	if err != nil {
		return err
	}
	return m.Up()
}

func newPaymentRegistry(cfg *config.PaymentsConfig) (*sales.PaymentRegistry, error) {
	company, parsed, err := cfg.PaymentMethods()
	if err != nil {
		return nil, err
	}
	methods := make([]sales.PaymentMethod, 0, len(parsed))
	for _, m := range parsed {
		methods = append(methods, sales.PaymentMethod{Name: m.Name, AccountID: m.AccountID, Cash: m.Cash})
	}
	return sales.NewPaymentRegistry(company, methods)
}
