// Package metrics defines the Prometheus collectors used by the catalog
// service and exposes an HTTP handler for scraping. Every recording method is
// safe on a nil *Metrics so components can run uninstrumented in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SyncTotal            *prometheus.CounterVec
	SyncDuration         prometheus.Histogram
	CatalogCards         prometheus.Gauge
	CatalogVersion       *prometheus.GaugeVec
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	QueryResultsCount    prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	StoreErrorsTotal     *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
	AnalyticsEventsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_sync_total",
				Help: "Catalog synchronisations by outcome (network, cache, unchanged, error).",
			},
			[]string{"outcome"},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_sync_duration_seconds",
				Help:    "Duration of catalog synchronisations in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		CatalogCards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_cards",
				Help: "Number of cards in the published catalog.",
			},
		),
		CatalogVersion: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_version_info",
				Help: "Set to 1 for the currently published catalog version.",
			},
			[]string{"version"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_queries_total",
				Help: "Catalog queries by mode (facet, search) and result (hit, zero_result).",
			},
			[]string{"mode", "result"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_query_latency_seconds",
				Help:    "Catalog query evaluation latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"mode"},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_query_results",
				Help:    "Number of cards matched per query.",
				Buckets: []float64{0, 1, 10, 60, 250, 1000, 5000, 20000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_hits_total",
				Help: "Total number of query result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_misses_total",
				Help: "Total number of query result cache misses.",
			},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_store_errors_total",
				Help: "Durable cache failures by operation (get, set, remove).",
			},
			[]string{"op"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		AnalyticsEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_total",
				Help: "Search analytics events by status (published, dropped, consumed).",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SyncTotal,
		m.SyncDuration,
		m.CatalogCards,
		m.CatalogVersion,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.StoreErrorsTotal,
		m.CircuitBreakerState,
		m.AnalyticsEventsTotal,
	)

	return m
}

// ObserveSync records one synchronisation outcome.
func (m *Metrics) ObserveSync(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncTotal.WithLabelValues(outcome).Inc()
	m.SyncDuration.Observe(d.Seconds())
}

// SetCatalog publishes the size and version of the live catalog.
func (m *Metrics) SetCatalog(version string, cards int) {
	if m == nil {
		return
	}
	m.CatalogCards.Set(float64(cards))
	m.CatalogVersion.Reset()
	m.CatalogVersion.WithLabelValues(version).Set(1)
}

// ObserveQuery records one query evaluation.
func (m *Metrics) ObserveQuery(mode string, results int, d time.Duration) {
	if m == nil {
		return
	}
	result := "hit"
	if results == 0 {
		result = "zero_result"
	}
	m.QueriesTotal.WithLabelValues(mode, result).Inc()
	m.QueryLatency.WithLabelValues(mode).Observe(d.Seconds())
	m.QueryResultsCount.Observe(float64(results))
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) StoreError(op string) {
	if m != nil {
		m.StoreErrorsTotal.WithLabelValues(op).Inc()
	}
}

// SetBreakerState records a circuit breaker transition; state follows the
// resilience package numbering.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	}
}

func (m *Metrics) AnalyticsEvent(status string) {
	if m != nil {
		m.AnalyticsEventsTotal.WithLabelValues(status).Inc()
	}
}

// Handler returns the Prometheus scrape HTTP handler for g. A nil g serves the
// default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
