package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/contract-admin/internal/config"
	"github.com/jwalitptl/contract-admin/internal/email"
	"github.com/jwalitptl/contract-admin/internal/handler/health"
	promHandler "github.com/jwalitptl/contract-admin/internal/handler/prometheus"
	"github.com/jwalitptl/contract-admin/internal/live"
	"github.com/jwalitptl/contract-admin/internal/migrations"
	"github.com/jwalitptl/contract-admin/internal/repository/postgres"
	eventService "github.com/jwalitptl/contract-admin/internal/service/event"
	notificationService "github.com/jwalitptl/contract-admin/internal/service/notification"
	"github.com/jwalitptl/contract-admin/internal/service/recipient"
	"github.com/jwalitptl/contract-admin/internal/worker"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/messaging/redis"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
	pkgworker "github.com/jwalitptl/contract-admin/pkg/worker"
)

func setupHealthCheck(port int, checks map[string]health.Check, registry *prometheus.Registry) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	metricsH := promHandler.New(registry)
	engine.Use(gin.Recovery(), metricsH.Middleware())
	health.NewHandler(checks).RegisterRoutes(engine.Group(""))
	engine.GET("/metrics", metricsH.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: engine}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	})
	log.Logger = appLogger.ZL

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := migrations.Up(db.DB); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	notificationRepo := postgres.NewNotificationRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)
	contractRepo := postgres.NewContractRepository(baseRepo)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewMetrics("contract_admin_worker", registry)

	checks := map[string]health.Check{"database": db.PingContext}

	// The worker holds no client connections. With a Redis live channel
	// its notifications reach the API instances through the relay;
	// otherwise recipients see them on their next fetch.
	var deliverer live.Deliverer
	if cfg.Live.Mode == "redis" {
		broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &appLogger.ZL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Redis broker")
		}
		defer broker.Close()
		deliverer = live.NewBrokerDeliverer(broker, cfg.Live.Channel)
		checks["redis"] = broker.Ping
	}

	notificationSvc := notificationService.NewService(notificationRepo, deliverer, appMetrics, appLogger)
	eventSvc := eventService.NewEventService(outboxRepo, appLogger)
	dispatcher := notificationService.NewDispatcher(notificationService.DispatcherDeps{
		Store:         notificationSvc,
		Resolver:      recipient.NewResolver(userRepo, contractRepo, appLogger),
		Notifications: notificationRepo,
		Users:         userRepo,
		Contracts:     contractRepo,
		Events:        eventSvc,
		Metrics:       appMetrics,
		Logger:        appLogger,
	})

	processor := pkgworker.NewOutboxProcessor(outboxRepo, cfg.Outbox.ToWorkerConfig(), appLogger, appMetrics)
	worker.RegisterHandlers(processor, email.NewService(cfg.Email), dispatcher, appLogger)

	purge := worker.NewNotificationPurgeWorker(notificationSvc, cfg.Notifications.RetentionDays, cfg.Notifications.PurgeInterval, appLogger)
	scanner := worker.NewContractScanner(contractRepo, dispatcher, cfg.Notifications.ExpiryHorizonDays, cfg.Notifications.ScanInterval, appLogger)
	outboxRetention := time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour
	outboxCleanup := pkgworker.NewPeriodic("outbox_cleanup", cfg.Notifications.PurgeInterval, func(ctx context.Context) error {
		_, err := eventSvc.CleanupProcessedEvents(ctx, outboxRetention)
		return err
	}, appLogger.With("outbox_cleanup"))

	healthSrv := setupHealthCheck(cfg.Worker.HealthPort, checks, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){
		processor.Start,
		purge.Start,
		scanner.Start,
		func(ctx context.Context) { outboxCleanup.Start(ctx, false) },
	} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Health check server forced to shutdown")
	}
}
