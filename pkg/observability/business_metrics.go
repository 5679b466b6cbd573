package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingestion metrics
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of webhook deliveries received",
	}, []string{
		"gateway", // paystack, alatpay, coralpay, credo
		"outcome", // processed, duplicate, stale, rejected, failed
	})

	webhookProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "End-to-end time to process a webhook delivery",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{
		"gateway",
	})

	webhookSignatureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_signature_failures_total",
		Help: "Webhook deliveries rejected for a missing or invalid signature",
	}, []string{
		"gateway",
	})

	replayGuardDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_guard_degraded_total",
		Help: "Replay guard cache operations that failed open",
	}, []string{
		"operation", // exists, set
	})

	// Subscription lifecycle metrics
	subscriptionActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_activations_total",
		Help: "Subscriptions created or renewed from completed payments",
	}, []string{
		"plan",    // daily, weekly, monthly
		"renewal", // true, false
	})

	subscriptionRevenueMinor = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_revenue_minor_units_total",
		Help: "Revenue from completed payments in minor currency units",
	}, []string{
		"gateway",
		"plan",
		"currency",
	})

	paymentFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_failures_total",
		Help: "Failed payment events recorded against subscriptions",
	}, []string{
		"gateway",
	})

	subscriptionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subscriptions_expired_total",
		Help: "Subscriptions deactivated by the expiry sweep",
	})

	ledgerAnomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_anomalies_total",
		Help: "Out-of-order gateway notifications ignored by the ledger",
	}, []string{
		"gateway",
		"kind", // failed_after_completed, stale_replay
	})
)

// RecordWebhookEvent records the outcome of one webhook delivery
func RecordWebhookEvent(gateway, outcome string, duration float64) {
	webhookEventsTotal.WithLabelValues(gateway, outcome).Inc()
	webhookProcessingDuration.WithLabelValues(gateway).Observe(duration)
}

// RecordSignatureFailure records a rejected delivery so spikes are visible
// even though the request body is never parsed
func RecordSignatureFailure(gateway string) {
	webhookSignatureFailuresTotal.WithLabelValues(gateway).Inc()
}

// RecordReplayGuardDegraded records a cache operation that failed open
func RecordReplayGuardDegraded(operation string) {
	replayGuardDegradedTotal.WithLabelValues(operation).Inc()
}

// RecordSubscriptionActivation records a subscription created or renewed
// from a completed payment, plus the revenue it carried
func RecordSubscriptionActivation(gateway, plan, currency string, renewal bool, amountMinor int64) {
	renewalLabel := "false"
	if renewal {
		renewalLabel = "true"
	}
	subscriptionActivationsTotal.WithLabelValues(plan, renewalLabel).Inc()
	subscriptionRevenueMinor.WithLabelValues(gateway, plan, currency).Add(float64(amountMinor))
}

// RecordPaymentFailure records a failed payment event
func RecordPaymentFailure(gateway string) {
	paymentFailuresTotal.WithLabelValues(gateway).Inc()
}

// RecordSubscriptionsExpired records rows deactivated by the expiry sweep
func RecordSubscriptionsExpired(count int64) {
	subscriptionsExpiredTotal.Add(float64(count))
}

// RecordLedgerAnomaly records an out-of-order notification the ledger ignored
func RecordLedgerAnomaly(gateway, kind string) {
	ledgerAnomaliesTotal.WithLabelValues(gateway, kind).Inc()
}
