package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adesolafarms/farmstore-backend/api/routes"
	cartsvc "github.com/adesolafarms/farmstore-backend/internal/cart"
	checkoutsvc "github.com/adesolafarms/farmstore-backend/internal/checkout"
	"github.com/adesolafarms/farmstore-backend/internal/customers"
	inventorysvc "github.com/adesolafarms/farmstore-backend/internal/inventory"
	ordersvc "github.com/adesolafarms/farmstore-backend/internal/orders"
	paymentsvc "github.com/adesolafarms/farmstore-backend/internal/payments"
	"github.com/adesolafarms/farmstore-backend/internal/products"
	"github.com/adesolafarms/farmstore-backend/pkg/config"
	"github.com/adesolafarms/farmstore-backend/pkg/db"
	"github.com/adesolafarms/farmstore-backend/pkg/farm"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/metrics"
	"github.com/adesolafarms/farmstore-backend/pkg/migrate"
	"github.com/adesolafarms/farmstore-backend/pkg/outbox"
	"github.com/adesolafarms/farmstore-backend/pkg/outbox/idempotency"
	"github.com/adesolafarms/farmstore-backend/pkg/paystack"
	"github.com/adesolafarms/farmstore-backend/pkg/redis"
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
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paystackClient, err := paystack.NewClient(
		cfg.Paystack.SecretKey,
		paystack.WithBaseURL(cfg.Paystack.BaseURL),
		paystack.WithTimeout(cfg.Paystack.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack client", err)
		os.Exit(1)
	}

	farmClient, err := farm.NewClient(cfg.Farm.BaseURL, cfg.Farm.APIKey, farm.WithTimeout(cfg.Farm.Timeout))
	if err != nil {
		logg.Error(context.Background(), "failed to create farm client", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	productsRepo := products.NewRepository(gormDB)
	customersRepo := customers.NewRepository(gormDB)
	cartRepo := cartsvc.NewRepository(gormDB)
	ordersRepo := ordersvc.NewRepository(gormDB)
	transactionsRepo := paymentsvc.NewRepository(gormDB)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	inventoryService, err := inventorysvc.NewService(ordersRepo, productsRepo, farmClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	ordersService, err := ordersvc.NewService(ordersvc.ServiceParams{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Inventory: inventoryService,
		Finance:   farmClient,
		Customers: customersRepo,
		Products:  productsRepo,
		Events:    outboxService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsService, err := paymentsvc.NewService(paymentsvc.ServiceParams{
		Repo:    transactionsRepo,
		Gateway: paystackClient,
		Orders:  ordersService,
		Tx:      dbClient,
		Events:  outboxService,
		Metrics: metrics.NewReconcilerMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	cartService, err := cartsvc.NewService(cartRepo, dbClient, productsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Tx:           dbClient,
		Carts:        cartRepo,
		Catalog:      productsRepo,
		Customers:    customersRepo,
		Orders:       ordersRepo,
		Transactions: transactionsRepo,
		Gateway:      paystackClient,
		Events:       outboxService,
		Logger:       logg,
		ShippingKobo: cfg.Checkout.ShippingCostKobo,
		CallbackURL:  cfg.Paystack.CallbackURL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookGuard, err := idempotency.NewManager(redisClient, cfg.Worker.WebhookSeenTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Cart:         cartService,
			Checkout:     checkoutService,
			Orders:       ordersService,
			Payments:     paymentsService,
			Paystack:     paystackClient,
			WebhookGuard: webhookGuard,
			Metrics:      prometheus.DefaultGatherer,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
