package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// Services groups the application services served over HTTP.
type Services struct {
	Cart     CartService
	Checkout CheckoutService
	Orders   OrderService
	Loyalty  LoyaltyService
}

// RouterConfig holds the cross-cutting settings of the router.
type RouterConfig struct {
	Validate       middleware.TokenValidator
	CORS           middleware.CORSConfig
	Metrics        *middleware.HTTPMetrics
	PprofCIDRs     []string
	RequestTimeout time.Duration

	// PlaceOrderLimit throttles order submission per shopper. A zero RPS
	// disables it.
	PlaceOrderLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(svcs Services, healthHandler *health.Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	placeOrderLimit := func(next http.Handler) http.Handler { return next }
	if cfg.PlaceOrderLimit.RPS > 0 {
		placeOrderLimit = middleware.RateLimit(cfg.PlaceOrderLimit, logger)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Handler)
	}
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.OptionalAuth(cfg.Validate))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.MountPprof(r, cfg.PprofCIDRs, logger)

	cartHandler := NewCartHandler(svcs.Cart, logger)
	checkoutHandler := NewCheckoutHandler(svcs.Checkout, logger)
	orderHandler := NewOrderHandler(svcs.Orders, logger)
	loyaltyHandler := NewLoyaltyHandler(svcs.Loyalty, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)

		// Provider callbacks are verified by signature, not by content type.
		r.Post("/payments/{method}/callback", orderHandler.PaymentCallback)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)

				r.Post("/items", cartHandler.AddItem)
				r.Patch("/items/{itemID}", cartHandler.UpdateItemQuantity)
				r.Delete("/items/{itemID}", cartHandler.RemoveItem)

				r.Post("/coupon", cartHandler.ApplyCoupon)
				r.Delete("/coupon", cartHandler.RemoveCoupon)

				r.Post("/bundles", cartHandler.AddBundle)
				r.Delete("/bundles/{bundleID}", cartHandler.RemoveBundle)

				r.With(RequireUser).Post("/merge", cartHandler.MergeCart)
			})

			r.Post("/bundles/{bundleID}/quote", cartHandler.QuoteBundle)

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/shipping-methods", checkoutHandler.ShippingMethods)
				r.Post("/preview", checkoutHandler.Preview)
				r.With(placeOrderLimit).Post("/orders", checkoutHandler.PlaceOrder)
			})

			r.Route("/orders", func(r chi.Router) {
				r.With(RequireUser).Get("/", orderHandler.ListOrders)
				r.Get("/{number}", orderHandler.GetOrder)
				r.Post("/{number}/cancel", orderHandler.CancelOrder)
			})

			r.With(RequireUser).Get("/loyalty", loyaltyHandler.GetAccount)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.Auth(cfg.Validate))
				r.Use(middleware.RequireRole("admin"))

				r.Patch("/orders/{number}/status", orderHandler.UpdateStatus)
				r.Post("/orders/{number}/payment", orderHandler.RecordPayment)
			})
		})
	})

	return r
}
