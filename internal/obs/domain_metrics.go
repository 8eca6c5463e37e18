package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/bookstore-storefront/internal/pricing"
)

var (
	domainOnce sync.Once

	// BreakdownsComputed counts price breakdowns computed, by source.
	BreakdownsComputed *prometheus.CounterVec
	// DiscountsApplied counts breakdowns that carried a discount, by kind.
	DiscountsApplied *prometheus.CounterVec
	// CartTotal records breakdown totals in minor units.
	CartTotal prometheus.Histogram
	// CartMutations counts cart mutations by operation and result.
	CartMutations *prometheus.CounterVec
	// CheckoutTotal counts checkout outcomes.
	CheckoutTotal *prometheus.CounterVec
	// PushDeliveriesTotal tracks push delivery outcomes.
	PushDeliveriesTotal *prometheus.CounterVec
	// PushAttemptLatency records push delivery latency in milliseconds.
	PushAttemptLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakdownsComputed = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_breakdowns_total",
			Help:      "Count of computed cart price breakdowns.",
		}, []string{"source"}))
		DiscountsApplied = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discounts_applied_total",
			Help:      "Count of breakdowns carrying a discount, by kind.",
		}, []string{"kind"}))
		CartTotal = registerOrReuse(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_total_cents",
			Help:      "Distribution of computed cart totals in minor units.",
			Buckets:   []float64{500, 1000, 2500, 5000, 10000, 25000, 50000, 100000},
		}))
		CartMutations = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and result.",
		}, []string{"op", "result"}))
		CheckoutTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout outcomes.",
		}, []string{"result"}))
		PushDeliveriesTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Count of push delivery outcomes.",
		}, []string{"result"}))
		PushAttemptLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_attempt_duration_ms",
			Help:      "Latency for push delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
	})
}

// ObserveBreakdown records a computed breakdown. It is a no-op until the
// domain metrics are registered.
func ObserveBreakdown(source string, b pricing.Breakdown) {
	if BreakdownsComputed == nil {
		return
	}
	BreakdownsComputed.WithLabelValues(source).Inc()
	CartTotal.Observe(float64(b.Total))
	if b.VolumeDiscountRate > 0 {
		DiscountsApplied.WithLabelValues("volume").Inc()
	}
	if b.LoyaltyDiscountRate > 0 {
		DiscountsApplied.WithLabelValues("loyalty").Inc()
	}
}

// ObserveCartMutation records the result of a cart mutation.
func ObserveCartMutation(op string, err error) {
	if CartMutations == nil {
		return
	}
	CartMutations.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObserveCheckout records a checkout outcome.
func ObserveCheckout(result string) {
	if CheckoutTotal == nil {
		return
	}
	CheckoutTotal.WithLabelValues(result).Inc()
}

// ObservePush records a push delivery attempt.
func ObservePush(result string, took time.Duration) {
	if PushDeliveriesTotal == nil {
		return
	}
	PushDeliveriesTotal.WithLabelValues(result).Inc()
	PushAttemptLatency.WithLabelValues(result).Observe(float64(took.Milliseconds()))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
