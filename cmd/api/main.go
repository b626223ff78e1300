package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/contract-admin/internal/config"
	"github.com/jwalitptl/contract-admin/internal/handler/health"
	notificationHandler "github.com/jwalitptl/contract-admin/internal/handler/notification"
	promHandler "github.com/jwalitptl/contract-admin/internal/handler/prometheus"
	"github.com/jwalitptl/contract-admin/internal/live"
	"github.com/jwalitptl/contract-admin/internal/middleware"
	"github.com/jwalitptl/contract-admin/internal/migrations"
	"github.com/jwalitptl/contract-admin/internal/repository/postgres"
	"github.com/jwalitptl/contract-admin/internal/router"
	eventService "github.com/jwalitptl/contract-admin/internal/service/event"
	notificationService "github.com/jwalitptl/contract-admin/internal/service/notification"
	"github.com/jwalitptl/contract-admin/internal/service/recipient"
	"github.com/jwalitptl/contract-admin/pkg/auth"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/messaging"
	"github.com/jwalitptl/contract-admin/pkg/messaging/redis"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	})
	log.Logger = appLogger.ZL

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := migrations.Up(db.DB); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	notificationRepo := postgres.NewNotificationRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)
	contractRepo := postgres.NewContractRepository(baseRepo)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics("contract_admin", registry)

	// Live channel
	liveRegistry := live.NewRegistry(appMetrics)
	localDeliverer := live.NewLocalDeliverer(liveRegistry, appMetrics, appLogger)
	var deliverer live.Deliverer = localDeliverer

	checks := map[string]health.Check{
		"database": db.PingContext,
	}

	if cfg.Live.Mode == "redis" {
		broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &appLogger.ZL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()

		deliverer = live.NewBrokerDeliverer(broker, cfg.Live.Channel)
		relay := live.NewRelay(messaging.NewBrokerAdapter(broker, func(topic string, err error) {
			log.Warn().Err(err).Str("topic", topic).Msg("failed to handle relayed push")
		}), cfg.Live.Channel, localDeliverer, appLogger)
		if err := relay.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start live relay")
		}
		checks["redis"] = broker.Ping
	}

	// Initialize services
	notificationSvc := notificationService.NewService(notificationRepo, deliverer, appMetrics, appLogger)
	eventSvc := eventService.NewEventService(outboxRepo, appLogger)
	resolver := recipient.NewResolver(userRepo, contractRepo, appLogger)
	dispatcher := notificationService.NewDispatcher(notificationService.DispatcherDeps{
		Store:         notificationSvc,
		Resolver:      resolver,
		Notifications: notificationRepo,
		Users:         userRepo,
		Contracts:     contractRepo,
		Events:        eventSvc,
		Metrics:       appMetrics,
		Logger:        appLogger,
	})

	// Initialize handlers
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, 0)
	notifH := notificationHandler.NewHandler(
		notificationSvc,
		liveRegistry,
		dispatcher,
		resolver,
		notificationHandler.Config{Heartbeat: cfg.Live.Heartbeat, BufferSize: cfg.Live.BufferSize},
		appLogger,
	)

	var limit rate.Limit
	if cfg.RateLimit.Enabled {
		limit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		health.NewHandler(checks),
		notifH,
		promHandler.New(registry),
		router.RouterConfig{
			Mode:       cfg.Server.Mode,
			RateLimit:  limit,
			RateBurst:  cfg.RateLimit.Burst,
			CORSConfig: corsConfig(cfg.Server.AllowedOrigins),
		},
	)
	r.Setup()

	// Streams end when ctx is cancelled, so shutdown does not wait on them.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("live_mode", cfg.Live.Mode).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func corsConfig(origins []string) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(origins) > 0 {
		c.AllowOrigins = origins
	}
	return c
}
