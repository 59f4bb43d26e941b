package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sarqyt/sarqyt-backend/api/controllers"
	ordercontrollers "github.com/sarqyt/sarqyt-backend/api/controllers/orders"
	paymentcontrollers "github.com/sarqyt/sarqyt-backend/api/controllers/payments"
	webhookcontrollers "github.com/sarqyt/sarqyt-backend/api/controllers/webhooks"
	"github.com/sarqyt/sarqyt-backend/api/middleware"
	internalorders "github.com/sarqyt/sarqyt-backend/internal/orders"
	internalpayments "github.com/sarqyt/sarqyt-backend/internal/payments"
	"github.com/sarqyt/sarqyt-backend/internal/payments/providers/click"
	"github.com/sarqyt/sarqyt-backend/internal/payments/providers/payme"
	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/db"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
	"github.com/sarqyt/sarqyt-backend/pkg/metrics"
	pkgredis "github.com/sarqyt/sarqyt-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DBPinger       db.Pinger
	Redis          *pkgredis.Client
	Orders         internalorders.Service
	Payments       internalpayments.Service
	ClickAdapter   *click.Adapter
	PaymeAdapter   *payme.Adapter
	PaymentMetrics *metrics.PaymentMetrics
	MetricsReg     prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DBPinger, p.Redis))
	})

	if p.MetricsReg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.MetricsReg, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		var guard pkgredis.IdempotencyStore
		if p.Redis != nil {
			guard = p.Redis
		}
		ttl := cfg.Eventing.WebhookIdempotencyTTL

		r.With(middleware.WebhookIdempotency("click", guard, ttl, logg)).
			Post("/click", webhookcontrollers.ClickWebhook(p.ClickAdapter, p.PaymentMetrics, logg))
		r.With(middleware.WebhookIdempotency("payme", guard, ttl, logg)).
			Post("/payme", webhookcontrollers.PaymeWebhook(cfg.Payme, p.PaymeAdapter, p.PaymentMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Status(p.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(p.Orders, logg))
			r.Post("/{orderId}/proof", paymentcontrollers.SubmitProof(p.Payments, logg))
			r.Get("/{orderId}/proof", paymentcontrollers.Proof(p.Payments, logg))
		})

		r.Route("/operator", func(r chi.Router) {
			r.Use(middleware.RequireOperator(logg))
			r.Post("/orders/{orderId}/advance", ordercontrollers.Advance(p.Orders, logg))
			r.Post("/orders/{orderId}/reject", ordercontrollers.Reject(p.Orders, logg))
			r.Post("/orders/{orderId}/proof/review", paymentcontrollers.ReviewProof(p.Payments, logg))
		})
	})

	return r
}
