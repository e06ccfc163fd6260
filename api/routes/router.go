package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nmarchetti-dev/tradepost-backend/api/controllers"
	webhookcontrollers "github.com/nmarchetti-dev/tradepost-backend/api/controllers/webhooks"
	"github.com/nmarchetti-dev/tradepost-backend/api/middleware"
	"github.com/nmarchetti-dev/tradepost-backend/internal/disputes"
	"github.com/nmarchetti-dev/tradepost-backend/internal/fulfillment"
	"github.com/nmarchetti-dev/tradepost-backend/internal/notifications"
	"github.com/nmarchetti-dev/tradepost-backend/internal/orders"
	"github.com/nmarchetti-dev/tradepost-backend/internal/payments"
	"github.com/nmarchetti-dev/tradepost-backend/internal/payouts"
	flutterwavewebhook "github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/flutterwave"
	paystackwebhook "github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/paystack"
	"github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/signature"
	stripewebhook "github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/stripe"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/config"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/metrics"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis *redis.Client

	PaymentsService      payments.Service
	OrdersService        orders.Service
	FulfillmentService   fulfillment.Service
	DisputesService      disputes.Service
	PayoutsService       payouts.Service
	NotificationsService notifications.Service

	PaystackWebhookService    *paystackwebhook.Service
	FlutterwaveWebhookService *flutterwavewebhook.Service
	StripeWebhookService      *stripewebhook.Service

	PaystackVerifier    *signature.PaystackVerifier
	FlutterwaveVerifier *signature.FlutterwaveVerifier
	StripeVerifier      *signature.StripeVerifier

	WebhookMetrics  *metrics.WebhookMetrics
	MetricsRegistry *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})

	if deps.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	// PSP deliveries authenticate with signatures, not sessions.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		timeout := cfg.Webhook.HandlerTimeout
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(deps.PaystackWebhookService, deps.PaystackVerifier, deps.WebhookMetrics, timeout, logg))
		r.Post("/flutterwave", webhookcontrollers.FlutterwaveWebhook(deps.FlutterwaveWebhookService, deps.FlutterwaveVerifier, deps.WebhookMetrics, timeout, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhookService, deps.StripeVerifier, deps.WebhookMetrics, timeout, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.OrdersService, logg))
			r.Get("/{orderID}", controllers.GetOrder(deps.OrdersService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", controllers.CreatePaymentIntent(deps.PaymentsService, logg))
			r.Get("/{orderID}", controllers.GetPayment(deps.PaymentsService, logg))
		})

		r.Route("/fulfillment", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.UserRoleSeller.String(), logg))
			r.Post("/items/{itemID}/ship", controllers.ShipItem(deps.FulfillmentService, logg))
			r.Post("/items/{itemID}/deliver", controllers.DeliverItem(deps.FulfillmentService, logg))
			r.Post("/items/{itemID}/issue", controllers.RaiseItemIssue(deps.FulfillmentService, logg))
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Post("/", controllers.OpenDispute(deps.DisputesService, logg))
			r.Post("/{disputeID}/resolve", controllers.ResolveDispute(deps.DisputesService, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/pending", controllers.GetPendingPayouts(deps.PayoutsService, logg))
			r.With(middleware.RequireRole(enums.UserRoleAdmin.String(), logg)).
				Post("/batch", controllers.MarkPaidOut(deps.PayoutsService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.NotificationsService, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.NotificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.NotificationsService, logg))
		})
	})

	return r
}
