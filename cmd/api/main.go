package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/wayfarehq/wayfare-backend/api/controllers"
	"github.com/wayfarehq/wayfare-backend/api/routes"
	"github.com/wayfarehq/wayfare-backend/internal/availability"
	"github.com/wayfarehq/wayfare-backend/internal/listings"
	"github.com/wayfarehq/wayfare-backend/internal/manualentry"
	"github.com/wayfarehq/wayfare-backend/internal/notifier"
	"github.com/wayfarehq/wayfare-backend/internal/occupancy"
	"github.com/wayfarehq/wayfare-backend/internal/reservations"
	"github.com/wayfarehq/wayfare-backend/pkg/config"
	"github.com/wayfarehq/wayfare-backend/pkg/db"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/metrics"
	"github.com/wayfarehq/wayfare-backend/pkg/migrate"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox/idempotency"
	"github.com/wayfarehq/wayfare-backend/pkg/pubsub"
	"github.com/wayfarehq/wayfare-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(pubsubClient.Close(), redisClient.Close()); err != nil {
			logg.Error(context.Background(), "shutdown cleanup failed", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reservationMetrics := metrics.NewReservationMetrics(registry)
	notifierMetrics := metrics.NewNotifierMetrics(registry)

	itemsRepo := listings.NewRepository(dbClient.DB())
	ledgerRepo := occupancy.NewRepository(dbClient.DB())
	reservationsRepo := reservations.NewRepository(dbClient.DB())

	availabilityService, err := availability.NewService(itemsRepo, ledgerRepo, redisClient, cfg.Availability, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create availability service", err)
		os.Exit(1)
	}

	hub := notifier.NewHub(cfg.Availability.SubscriberBuffer, notifierMetrics)

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	// The occupancy consumer runs inside each api instance so that hub
	// fan-out reaches the SSE subscribers that instance holds. Every
	// instance needs its own subscription; sharing one would split the
	// stream across instances instead of delivering to all of them.
	consumer, err := notifier.NewConsumer(hub, pubsubClient.OccupancySubscription(), idempotencyManager, redisClient, cfg.Availability, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create occupancy consumer", err)
		os.Exit(1)
	}

	reservationService, err := reservations.NewService(reservations.Deps{
		Tx:           dbClient,
		Items:        itemsRepo,
		Ledger:       ledgerRepo,
		Reservations: reservationsRepo,
		Emitter:      outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Notifier:     hub,
		Invalidator:  availabilityService,
		Metrics:      reservationMetrics,
		MaxAttempts:  cfg.Reserve.MaxAttempts,
		RetryBackoff: cfg.Reserve.RetryBackoff,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	manualAdapter, err := manualentry.NewAdapter(availabilityService, reservationService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create manual entry adapter", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(runCtx, "occupancy consumer stopped", err)
		}
	}()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config: cfg,
			Logger: logg,
			Redis:  redisClient,
			Pingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Metrics:      registry,
			Availability: availabilityService,
			Reservations: reservationService,
			ManualEntry:  manualAdapter,
			Hub:          hub,
			ListingsRepo: itemsRepo,
		}),
	}

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
