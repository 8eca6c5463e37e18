package resilience

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "storefront"

// Outbound call metrics, labelled by target (bookstore_api, push_endpoint).
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Current breaker state: 0=closed, 1=open, 2=half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Breaker state transitions.",
	}, []string{"target", "from", "to"})
	HTTPAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbound",
		Name:      "http_attempts_total",
		Help:      "Outbound HTTP attempts by outcome: ok, retry, exhausted, rejected.",
	}, []string{"target", "outcome"})
	HTTPAttemptSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbound",
		Name:      "http_attempt_seconds",
		Help:      "Latency of single outbound HTTP attempts.",
		Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, HTTPAttempts, HTTPAttemptSeconds)
}
