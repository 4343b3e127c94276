package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"permit-payments/config"
	"permit-payments/internal/adapter/gateway"
	httpHandler "permit-payments/internal/adapter/http/handler"
	"permit-payments/internal/adapter/notify"
	pgStorage "permit-payments/internal/adapter/storage/postgres"
	redisStorage "permit-payments/internal/adapter/storage/redis"
	"permit-payments/internal/core/ports"
	"permit-payments/internal/service"
	"permit-payments/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Permit Payments")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	orderRepo := pgStorage.NewPaymentOrderRepo(pool)
	eventRepo := pgStorage.NewWebhookEventRepo(pool)
	appRepo := pgStorage.NewApplicationRepo(pool)
	notifLogRepo := pgStorage.NewNotificationLogRepo(pool)

	// Initialize Redis stores
	eventCache := redisStorage.NewEventCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Gateway client behind per-operation circuit breakers
	rawGateway := gateway.NewClient(cfg.Gateway, nil, log)
	gatewayClient := gateway.NewBreakerClient(rawGateway, cfg.Gateway, log)

	// Outbound notifications to the permits service
	notifier := notify.NewNotifier(cfg.Notify, nil, notifLogRepo, log)

	// Initialize business services
	metricsSvc := service.NewMetricsService(gatewayClient, log)
	paymentSvc := service.NewPaymentService(orderRepo, appRepo, gatewayClient, cfg.Gateway.VoucherExpiry, log)
	webhookSvc := service.NewWebhookService(
		eventRepo,
		orderRepo,
		appRepo,
		eventCache,
		notifier,
		metricsSvc,
		cfg.Gateway.WebhookSecret,
		log,
	)
	reconcileSvc := service.NewReconcileService(
		orderRepo,
		appRepo,
		gatewayClient,
		notifier,
		metricsSvc,
		cfg.Sweeper.Interval,
		cfg.Sweeper.Staleness,
		cfg.Sweeper.BatchSize,
		log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Start the reconciliation sweeper
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go reconcileSvc.Run(sweepCtx)
	log.Info().
		Dur("interval", cfg.Sweeper.Interval).
		Dur("staleness", cfg.Sweeper.Staleness).
		Msg("Reconciliation sweeper started")

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:      paymentSvc,
		WebhookSvc:      webhookSvc,
		ReconcileSvc:    reconcileSvc,
		MetricsSvc:      metricsSvc,
		SignatureHeader: cfg.Gateway.SignatureHeader,
		RateLimitStore:  rateLimitStore,
		HealthCheckers:  []ports.HealthChecker{pgHealth, redisHealth},
		Logger:          log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	notifier.Shutdown()

	log.Info().Msg("Server exited")
}
