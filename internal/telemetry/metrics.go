package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the assistant. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ProviderCallTotal      *prometheus.CounterVec
	ProviderCallDurationMs *prometheus.HistogramVec
	FallbackExhaustedTotal prometheus.Counter
	ClassificationTotal    *prometheus.CounterVec
	ClassificationMs       *prometheus.HistogramVec
	MessageTotal           *prometheus.CounterVec
	EscalationTotal        *prometheus.CounterVec
	RateLimitHitTotal      *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ProviderCallTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_provider_calls_total",
			Help: "Provider attempts made by the fallback orchestrator, by outcome.",
		}, []string{"provider", "outcome"}),

		ProviderCallDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "concierge_provider_call_duration_ms",
			Help:    "Provider call latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"provider"}),

		FallbackExhaustedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "concierge_fallback_exhausted_total",
			Help: "Fallback runs where every provider was skipped or failed.",
		}),

		ClassificationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_classifications_total",
			Help: "Classified messages by source tier and intent.",
		}, []string{"source", "intent"}),

		ClassificationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "concierge_classification_duration_ms",
			Help:    "End-to-end classification latency in milliseconds.",
			Buckets: []float64{1, 5, 25, 100, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"source"}),

		MessageTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_messages_total",
			Help: "Handled guest messages by routing action.",
		}, []string{"action"}),

		EscalationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_escalations_total",
			Help: "Staff escalations by reason.",
		}, []string{"reason"}),

		RateLimitHitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_rate_limit_hits_total",
			Help: "Inbound requests rejected by a rate limit.",
		}, []string{"dimension", "key"}),
	}
}

// RecordProviderCall records one provider attempt. outcome is one of
// success, empty, error, rate_limited, skipped_open, skipped_cooldown.
func (m *Metrics) RecordProviderCall(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCallTotal.WithLabelValues(provider, outcome).Inc()
	if d > 0 {
		m.ProviderCallDurationMs.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
	}
}

func (m *Metrics) RecordFallbackExhausted() {
	if m == nil {
		return
	}
	m.FallbackExhaustedTotal.Inc()
}

func (m *Metrics) RecordClassification(source, intent string, d time.Duration) {
	if m == nil {
		return
	}
	m.ClassificationTotal.WithLabelValues(source, intent).Inc()
	m.ClassificationMs.WithLabelValues(source).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) RecordMessage(action string) {
	if m == nil {
		return
	}
	m.MessageTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordEscalation(reason string) {
	if m == nil {
		return
	}
	m.EscalationTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimitHit records a rejected inbound request.
func (m *Metrics) RecordRateLimitHit(dimension, key string) {
	if m == nil {
		return
	}
	m.RateLimitHitTotal.WithLabelValues(dimension, key).Inc()
}
