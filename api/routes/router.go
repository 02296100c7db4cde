package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adesolafarms/farmstore-backend/api/controllers"
	webhookcontrollers "github.com/adesolafarms/farmstore-backend/api/controllers/webhooks"
	"github.com/adesolafarms/farmstore-backend/api/middleware"
	cartsvc "github.com/adesolafarms/farmstore-backend/internal/cart"
	checkoutsvc "github.com/adesolafarms/farmstore-backend/internal/checkout"
	ordersvc "github.com/adesolafarms/farmstore-backend/internal/orders"
	paymentsvc "github.com/adesolafarms/farmstore-backend/internal/payments"
	"github.com/adesolafarms/farmstore-backend/pkg/config"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/outbox/idempotency"
	"github.com/adesolafarms/farmstore-backend/pkg/paystack"
	"github.com/adesolafarms/farmstore-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        *redis.Client
	Cart         cartsvc.Service
	Checkout     *checkoutsvc.Service
	Orders       ordersvc.Service
	Payments     *paymentsvc.Service
	Paystack     *paystack.Client
	WebhookGuard *idempotency.Manager
	Metrics      prometheus.Gatherer
}

// NewRouter wires the middleware stack and route tree.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Get("/healthz", controllers.Healthz(cfg, params.DB, params.Redis, logg))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	// Webhooks authenticate with their own HMAC signature, not a JWT.
	r.Post("/api/v1/payment/webhook", webhookcontrollers.Paystack(params.Payments, params.Paystack, params.WebhookGuard, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(params.Cart, logg))
			r.Delete("/", controllers.CartClear(params.Cart, logg))
			r.Post("/items", controllers.CartAddItem(params.Cart, logg))
			r.Patch("/items/{productID}", controllers.CartUpdateItem(params.Cart, logg))
			r.Delete("/items/{productID}", controllers.CartRemoveItem(params.Cart, logg))
		})

		r.With(middleware.RateLimit("checkout", cfg.RateLimit.CheckoutLimit, cfg.RateLimit.CheckoutWindow, params.Redis, logg)).
			Post("/checkout", controllers.Checkout(params.Checkout, logg))

		r.With(middleware.RateLimit("verify", cfg.RateLimit.VerifyLimit, cfg.RateLimit.VerifyWindow, params.Redis, logg)).
			Get("/payment/verify", controllers.PaymentVerify(params.Payments, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))

			r.Get("/orders", controllers.AdminOrdersList(params.Orders, logg))
			r.Get("/orders/{orderID}", controllers.AdminOrderDetail(params.Orders, logg))
			r.Patch("/orders/{orderID}/status", controllers.AdminOrderUpdateStatus(params.Orders, logg))
		})
	})

	return r
}
