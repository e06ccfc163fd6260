package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nmarchetti-dev/tradepost-backend/api/routes"
	"github.com/nmarchetti-dev/tradepost-backend/internal/disputes"
	"github.com/nmarchetti-dev/tradepost-backend/internal/fulfillment"
	"github.com/nmarchetti-dev/tradepost-backend/internal/notifications"
	"github.com/nmarchetti-dev/tradepost-backend/internal/orders"
	"github.com/nmarchetti-dev/tradepost-backend/internal/payments"
	"github.com/nmarchetti-dev/tradepost-backend/internal/payments/providers"
	"github.com/nmarchetti-dev/tradepost-backend/internal/payouts"
	hooks "github.com/nmarchetti-dev/tradepost-backend/internal/webhooks"
	flutterwavewebhook "github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/flutterwave"
	paystackwebhook "github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/paystack"
	"github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/signature"
	stripewebhook "github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/stripe"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/config"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/db"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/metrics"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/migrate"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/outbox"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/redis"
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	providerRegistry := providers.Registry{}
	if cfg.Providers.Paystack.SecretKey != "" {
		client, err := providers.NewPaystackClient(cfg.Providers.Paystack)
		if err != nil {
			logg.Error(context.Background(), "failed to create paystack client", err)
			os.Exit(1)
		}
		providerRegistry[enums.PaymentProviderPaystack] = client
	}
	if cfg.Providers.Flutterwave.SecretKey != "" {
		client, err := providers.NewFlutterwaveClient(cfg.Providers.Flutterwave)
		if err != nil {
			logg.Error(context.Background(), "failed to create flutterwave client", err)
			os.Exit(1)
		}
		providerRegistry[enums.PaymentProviderFlutterwave] = client
	}
	if cfg.Providers.Stripe.APIKey != "" {
		client, err := providers.NewStripeClient(cfg.Providers.Stripe)
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe client", err)
			os.Exit(1)
		}
		providerRegistry[enums.PaymentProviderStripe] = client
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:      payments.NewRepository(dbClient.DB()),
		Providers: providerRegistry,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:              orders.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	fulfillmentService, err := fulfillment.NewService(fulfillment.ServiceParams{
		Repo:              fulfillment.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Outbox:            outboxService,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment service", err)
		os.Exit(1)
	}

	disputesService, err := disputes.NewService(disputes.ServiceParams{
		Repo:              disputes.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Outbox:            outboxService,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create disputes service", err)
		os.Exit(1)
	}

	payoutsService, err := payouts.NewService(payouts.ServiceParams{
		Repo:              payouts.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Outbox:            outboxService,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notifications.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		TransactionRunner: dbClient,
		Repo:              payments.NewRepository(dbClient.DB()),
		Outbox:            outboxService,
		Metrics:           webhookMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment reconciler", err)
		os.Exit(1)
	}

	paystackVerifier, err := signature.NewPaystackVerifier(cfg.Providers.Paystack.SecretKey)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack verifier", err)
		os.Exit(1)
	}
	flutterwaveVerifier, err := signature.NewFlutterwaveVerifier(cfg.Providers.Flutterwave.VerifHash)
	if err != nil {
		logg.Error(context.Background(), "failed to create flutterwave verifier", err)
		os.Exit(1)
	}
	stripeVerifier, err := signature.NewStripeVerifier(cfg.Providers.Stripe.WebhookSecret, signature.DefaultStripeTolerance, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe verifier", err)
		os.Exit(1)
	}

	paystackWebhookService, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{
		Reconciler: reconciler,
		Guard:      mustGuard(logg, redisClient, cfg.Webhook.GuardTTL, "webhook:paystack"),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack webhook service", err)
		os.Exit(1)
	}
	flutterwaveWebhookService, err := flutterwavewebhook.NewService(flutterwavewebhook.ServiceParams{
		Reconciler: reconciler,
		Guard:      mustGuard(logg, redisClient, cfg.Webhook.GuardTTL, "webhook:flutterwave"),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create flutterwave webhook service", err)
		os.Exit(1)
	}
	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Reconciler: reconciler,
		Guard:      mustGuard(logg, redisClient, cfg.Webhook.GuardTTL, "webhook:stripe"),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(routes.Deps{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Redis:  redisClient,

		PaymentsService:      paymentsService,
		OrdersService:        ordersService,
		FulfillmentService:   fulfillmentService,
		DisputesService:      disputesService,
		PayoutsService:       payoutsService,
		NotificationsService: notificationsService,

		PaystackWebhookService:    paystackWebhookService,
		FlutterwaveWebhookService: flutterwaveWebhookService,
		StripeWebhookService:      stripeWebhookService,

		PaystackVerifier:    paystackVerifier,
		FlutterwaveVerifier: flutterwaveVerifier,
		StripeVerifier:      stripeVerifier,

		WebhookMetrics:  webhookMetrics,
		MetricsRegistry: registry,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

func mustGuard(logg *logger.Logger, store *redis.Client, ttl time.Duration, scope string) *hooks.IdempotencyGuard {
	guard, err := hooks.NewIdempotencyGuard(store, ttl, scope)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}
	return guard
}
