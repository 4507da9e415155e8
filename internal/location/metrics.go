package location

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricLocationUpdatesTotal = "location_updates_total"
	MetricNearbyQueriesTotal   = "location_nearby_queries_total"
	MetricNearbyQueryDuration  = "location_nearby_query_duration_seconds"
	MetricDecryptFailuresTotal = "location_decrypt_failures_total"
	MetricWindowFallbacksTotal = "location_window_fallbacks_total"
)

// Metrics contains Prometheus metrics for the location subsystem.
// All operations are thread-safe. A nil *Metrics is a no-op receiver
// so the engine can run unmetered in tests.
type Metrics struct {
	updatesTotal    prometheus.Counter
	queriesTotal    *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	decryptFailures prometheus.Counter
	windowFallbacks *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all
// collectors initialized. The metrics are not registered; call
// Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		updatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricLocationUpdatesTotal,
			Help: "Total number of location upsert operations",
		}),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricNearbyQueriesTotal,
			Help: "Total number of nearby queries by variant (user, coordinates)",
		}, []string{"variant"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricNearbyQueryDuration,
			Help:    "Histogram of nearby query duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDecryptFailuresTotal,
			Help: "Total number of location records that failed to decrypt",
		}),
		windowFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricWindowFallbacksTotal,
			Help: "Total number of recency window fallbacks by side (self, candidates)",
		}, []string{"side"}),
	}
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.updatesTotal,
		m.queriesTotal,
		m.queryDuration,
		m.decryptFailures,
		m.windowFallbacks,
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordUpdate increments the location update counter.
func (m *Metrics) RecordUpdate() {
	if m == nil {
		return
	}
	m.updatesTotal.Inc()
}

// RecordQuery increments the nearby query counter for a variant.
func (m *Metrics) RecordQuery(variant string) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(variant).Inc()
}

// ObserveQueryDuration records the duration of a nearby query.
func (m *Metrics) ObserveQueryDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.Observe(d.Seconds())
}

// RecordDecryptFailure increments the decrypt failure counter.
func (m *Metrics) RecordDecryptFailure() {
	if m == nil {
		return
	}
	m.decryptFailures.Inc()
}

// RecordWindowFallback increments the window fallback counter for a side.
func (m *Metrics) RecordWindowFallback(side string) {
	if m == nil {
		return
	}
	m.windowFallbacks.WithLabelValues(side).Inc()
}
