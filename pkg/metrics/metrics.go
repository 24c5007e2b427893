package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records cart, checkout and upstream activity. A nil *Metrics is a no-op.
type Metrics struct {
	cartMutations   *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
	upstream        *prometheus.HistogramVec
}

// New registers the storefront metrics on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	cartMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by operation.",
	}, []string{"op"})
	persistFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_persist_failures_total",
		Help: "Cart snapshot writes or reads that failed.",
	}, []string{"op"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	upstream := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_api_request_duration_seconds",
		Help:    "Latency of store API calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "result"})
	reg.MustRegister(cartMutations, persistFailures, checkouts, upstream)
	return &Metrics{
		cartMutations:   cartMutations,
		persistFailures: persistFailures,
		checkouts:       checkouts,
		upstream:        upstream,
	}
}

// IncCartMutation counts one cart mutation.
func (m *Metrics) IncCartMutation(op string) {
	if m == nil || m.cartMutations == nil {
		return
	}
	m.cartMutations.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncPersistFailure counts a snapshot write/read failure.
func (m *Metrics) IncPersistFailure(op string) {
	if m == nil || m.persistFailures == nil {
		return
	}
	m.persistFailures.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncCheckout counts a checkout attempt by outcome.
func (m *Metrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveUpstream records the duration of a store API call.
func (m *Metrics) ObserveUpstream(endpoint string, err error, duration time.Duration) {
	if m == nil || m.upstream == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.upstream.WithLabelValues(normalizeLabel(endpoint), result).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
