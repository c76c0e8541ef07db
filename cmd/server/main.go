package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"tripflow/internal/app"
	"tripflow/internal/cache"
	"tripflow/internal/config"
	"tripflow/internal/handler"
	internalRedis "tripflow/internal/redis"
	"tripflow/internal/repository/postgres"
	"tripflow/internal/rmq"
	"tripflow/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer initCancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(initCtx, cfg.Database, nrApp)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(initCtx, cfg.Redis, nrApp)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Initialize RabbitMQ if enabled; the notifier degrades to log-only
	// without it.
	var rmqClient *rmq.Client
	if cfg.Rabbit.Enabled {
		rmqClient, err = rmq.NewClient(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rmqClient.Close()
		logger.Info("connected to RabbitMQ", "exchange", cfg.Rabbit.Exchange)
	}

	// Background jobs live until shutdown, not until init times out.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// Wire dependencies.
	server, timers, flow, surgeCache := wireServer(db, redisClient, rmqClient, nrApp, cfg, logger)

	go timers.Run(runCtx, flow)
	go surgeCache.RunRefresh(runCtx, cfg.Surge.RefreshInterval)

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	runCancel()
	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server together
// with the background components main must run.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	rmqClient *rmq.Client,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *slog.Logger,
) (*http.Server, *service.TimerManager, *service.TripFlowService, *cache.SurgeCache) {
	// Initialize Redis stores.
	lockStore := internalRedis.NewTripLockStore(redisClient, cfg.Lock.TTL, cfg.Lock.RetryInterval)
	tripCache := internalRedis.NewTripCacheStore(redisClient)

	// Initialize repositories.
	tripRepo := postgres.NewTripRepository(db)
	snippetRepo := postgres.NewSnippetRepository(db)
	surgeRepo := postgres.NewSurgeWindowRepository(db)
	captureRepo := postgres.NewCaptureRepository(db)

	// Initialize services.
	surgeCache := cache.NewSurgeCache(surgeRepo, cfg.Surge.TTL, cfg.Surge.Capacity, logger)

	var publisher service.EventPublisher
	if rmqClient != nil {
		publisher = rmqClient
	}
	notifier := service.NewNotificationService(publisher, logger)

	psp := service.NewMockPSP()
	settlement := service.NewSettlementService(captureRepo, psp, logger)

	timerCfg := service.TimerConfig{
		NoShowGrace:    cfg.Timers.NoShowGrace,
		WaitingGrace:   cfg.Timers.WaitingGrace,
		TickInterval:   cfg.Timers.TickInterval,
		WaitingCeiling: cfg.Timers.WaitingCeiling,
		Workers:        cfg.Timers.Workers,
	}
	timers := service.NewTimerManager(timerCfg, logger)

	pricing := service.PricingConfig{
		WaitPerMinuteRate: cfg.Pricing.WaitPerMinuteRate,
		NoShowPenalty:     cfg.Pricing.NoShowPenalty,
		DriverShare:       cfg.Pricing.DriverShare,
	}

	flow := service.NewTripFlowService(
		tripRepo, snippetRepo, surgeCache, lockStore, tripCache,
		settlement, notifier, timers,
		pricing, timerCfg, cfg.Lock.AcquireTimeout, logger,
	)
	quotes := service.NewQuoteService(surgeCache, logger)

	// Initialize handlers.
	tripHandler := handler.NewTripHandler(flow)
	quoteHandler := handler.NewQuoteHandler(quotes)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TripHandler:  tripHandler,
		QuoteHandler: quoteHandler,
		RedisClient:  redisClient,
		NewRelicApp:  nrApp,
	})

	// Create HTTP server.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return server, timers, flow, surgeCache
}
