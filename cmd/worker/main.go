package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	cartsvc "github.com/adesolafarms/farmstore-backend/internal/cart"
	"github.com/adesolafarms/farmstore-backend/internal/cron"
	inventorysvc "github.com/adesolafarms/farmstore-backend/internal/inventory"
	ordersvc "github.com/adesolafarms/farmstore-backend/internal/orders"
	"github.com/adesolafarms/farmstore-backend/internal/products"
	"github.com/adesolafarms/farmstore-backend/pkg/config"
	"github.com/adesolafarms/farmstore-backend/pkg/db"
	"github.com/adesolafarms/farmstore-backend/pkg/farm"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/metrics"
	"github.com/adesolafarms/farmstore-backend/pkg/migrate"
	"github.com/adesolafarms/farmstore-backend/pkg/outbox"
	"github.com/adesolafarms/farmstore-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	farmClient, err := farm.NewClient(cfg.Farm.BaseURL, cfg.Farm.APIKey, farm.WithTimeout(cfg.Farm.Timeout))
	if err != nil {
		logg.Error(context.Background(), "failed to create farm client", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	inventoryService, err := inventorysvc.NewService(
		ordersvc.NewRepository(gormDB),
		products.NewRepository(gormDB),
		farmClient,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	stockSyncJob, err := cron.NewStockSyncJob(cron.StockSyncJobParams{
		Logger:    logg,
		Inventory: inventoryService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stock sync job", err)
		os.Exit(1)
	}

	cartCleanupJob, err := cron.NewCartCleanupJob(cron.CartCleanupJobParams{
		Logger:     logg,
		Repository: cartsvc.NewRepository(gormDB),
		IdleTTL:    cfg.Worker.CartIdleTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart cleanup job", err)
		os.Exit(1)
	}

	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(gormDB),
		KeepFor:    cfg.Worker.OutboxKeepFor,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("worker"), cfg.Worker.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(stockSyncJob, cartCleanupJob, outboxRetentionJob),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Worker.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
