// Package metrics defines the service's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every instrument the pipeline touches.
type Metrics struct {
	MessagesProcessed *prometheus.CounterVec
	IntentDetected    *prometheus.CounterVec
	LLMLatency        prometheus.Histogram
	JobsByStatus      *prometheus.GaugeVec
	BreakerState      *prometheus.GaugeVec
	CommentsHandled   *prometheus.CounterVec
}

// New registers all instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_messages_processed_total",
			Help: "Inbound messages processed, by platform and outcome.",
		}, []string{"platform", "outcome"}),
		IntentDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_intents_detected_total",
			Help: "Detected intents by type.",
		}, []string{"intent"}),
		LLMLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_llm_latency_seconds",
			Help:    "LLM completion latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		JobsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchestrator_jobs",
			Help: "Webhook jobs by status.",
		}, []string{"status"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchestrator_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"service"}),
		CommentsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_comments_handled_total",
			Help: "Inbound comments, by decision.",
		}, []string{"decision"}),
	}

	reg.MustRegister(
		m.MessagesProcessed,
		m.IntentDetected,
		m.LLMLatency,
		m.JobsByStatus,
		m.BreakerState,
		m.CommentsHandled,
	)
	return m
}
