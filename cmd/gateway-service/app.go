package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/lib/pq" // PostgreSQL driver

	"hookgate/internal/alerts"
	"hookgate/internal/billing"
	"hookgate/internal/broker"
	"hookgate/internal/config"
	"hookgate/internal/constants"
	"hookgate/internal/event"
	"hookgate/internal/filter"
	"hookgate/internal/gateway"
	"hookgate/internal/logger"
	"hookgate/internal/signature"
	"hookgate/internal/workflow"
	"hookgate/pkg/bootstrap"
	"hookgate/pkg/health"
	"hookgate/pkg/metrics"
	"hookgate/pkg/middleware"
	"hookgate/pkg/ratelimit"
	"hookgate/pkg/retry"
	"hookgate/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	notifier       *alerts.Notifier
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, "gateway-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.config.Database.RunMigrations {
		if err := a.dbConnector.RunMigrations(a.db, "file://db/migrations"); err != nil {
			return err
		}
	}

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "Redis connection failed, continuing without result cache", "error", err)
	} else {
		a.redisClient = redisClient
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "MongoDB connection failed, continuing without workflow tracking", "error", err)
	} else {
		a.mongoClient = mongoClient
	}

	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("gateway-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())

	if a.config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.RateLimit.RPS,
			Burst:           a.config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	metrics.RegisterGatewayMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterBrokerMetrics()

	ledger := event.NewLedger(a.db)

	var cache event.ResultCache
	if a.redisClient != nil && a.config.Cache.Enabled {
		cache = event.NewCircuitBreakerCache(event.NewRedisCache(a.redisClient), a.config.CircuitBreaker)
	}

	processor := event.NewProcessor(ledger, cache,
		time.Duration(a.config.Cache.TTLSeconds)*time.Second, a.logger)

	workflows := workflow.NewService(a.mongoClient, a.config.Database.MongoDB.Database, a.logger)
	if err := workflows.EnsureIndexes(context.Background()); err != nil {
		a.logger.Warnw("Failed to ensure workflow indexes", "error", err)
	}

	effects := billing.NewEffects(billing.NewRepository(a.db), workflows, a.logger)

	if a.config.Alerts.Enabled {
		producer, err := broker.NewProducer(a.config.Broker, a.logger)
		if err != nil {
			a.logger.WarnwCtx(context.Background(), "Failed to create alert producer, alerts disabled", "error", err)
		} else {
			a.notifier = alerts.NewNotifier(producer,
				a.config.Broker.Kafka.AlertTopic,
				a.config.Alerts.Workers,
				retryPolicy(a.config.Alerts.Retry),
				a.logger,
			)
			a.logger.InfowCtx(context.Background(), "Alert producer initialized")
		}
	}

	filterExpressions := make(map[string]string, len(a.config.Providers))
	for name, providerCfg := range a.config.Providers {
		filterExpressions[name] = providerCfg.Filter
	}
	eventFilter, err := filter.New(filterExpressions, a.config.Filtering.Fallback.OnError, a.logger)
	if err != nil {
		return err
	}

	verifier := signature.NewVerifier(a.config.Verification.RequireSecrets, a.logger)
	secrets := gateway.NewSecretResolver(a.config.Providers)

	handler := gateway.NewHandler(verifier, processor, effects, a.notifier, eventFilter, secrets, a.logger)
	handler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redisClient != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redisClient))
	}
	if a.mongoClient != nil {
		healthRegistry.RegisterOptional(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	if cfg.MaxAttempts <= 0 {
		return retry.DefaultPolicy()
	}
	return retry.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		MaxElapsedTime:  cfg.MaxElapsedTime,
	}
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("alert notifier shutdown error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	dbErrs := a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)
	errs = append(errs, dbErrs...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
