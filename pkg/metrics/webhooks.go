package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records delivery handling outcomes per provider.
type WebhookMetrics struct {
	deliveries     *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	reconciliation *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Webhook deliveries received, by provider and outcome.",
	}, []string{"provider", "outcome"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_signature_rejections_total",
		Help: "Webhook deliveries rejected before processing, by provider and reason.",
	}, []string{"provider", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_handle_duration_seconds",
		Help:    "Duration of webhook handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	reconciliation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Payment reconciliation outcomes, by result.",
	}, []string{"result"})
	reg.MustRegister(deliveries, rejections, duration, reconciliation)
	return &WebhookMetrics{
		deliveries:     deliveries,
		rejections:     rejections,
		duration:       duration,
		reconciliation: reconciliation,
	}
}

// IncDelivery increments the delivery counter for a provider and outcome.
func (m *WebhookMetrics) IncDelivery(provider, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncRejection increments the signature rejection counter for a provider and reason.
func (m *WebhookMetrics) IncRejection(provider, reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

// ObserveHandleDuration records how long a delivery took to process.
func (m *WebhookMetrics) ObserveHandleDuration(provider string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(provider)).Observe(duration.Seconds())
}

// IncReconciliation increments the reconciliation counter for a result.
func (m *WebhookMetrics) IncReconciliation(result string) {
	if m == nil || m.reconciliation == nil {
		return
	}
	m.reconciliation.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
