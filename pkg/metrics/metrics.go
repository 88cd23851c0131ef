// Package metrics defines the Prometheus collectors for index builds and
// searches and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so callers never need to check.
type Metrics struct {
	DocsIndexedTotal    prometheus.Counter
	FilesFailedTotal    prometheus.Counter
	SegmentsTotal       *prometheus.CounterVec
	BuildDuration       prometheus.Histogram
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  prometheus.Histogram
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid clashing with the global one.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "codesearch_docs_indexed_total",
				Help: "Total documents added to an index.",
			},
		),
		FilesFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "codesearch_files_failed_total",
				Help: "Total files skipped because they could not be read.",
			},
		),
		SegmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codesearch_segments_total",
				Help: "Segment files written, by operation (flush, merge).",
			},
			[]string{"op"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "codesearch_build_duration_seconds",
				Help:    "Wall time of complete index builds.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codesearch_search_queries_total",
				Help: "Search queries by mode (exact, wildcard) and outcome (hit, zero_result, error).",
			},
			[]string{"mode", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codesearch_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "codesearch_search_results_count",
				Help:    "Number of hits returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "codesearch_cache_hits_total",
				Help: "Total search result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "codesearch_cache_misses_total",
				Help: "Total search result cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "codesearch_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.FilesFailedTotal,
		m.SegmentsTotal,
		m.BuildDuration,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)
	return m
}

func (m *Metrics) DocIndexed() {
	if m != nil {
		m.DocsIndexedTotal.Inc()
	}
}

func (m *Metrics) FileFailed(n int) {
	if m != nil && n > 0 {
		m.FilesFailedTotal.Add(float64(n))
	}
}

func (m *Metrics) SegmentWritten(op string) {
	if m != nil {
		m.SegmentsTotal.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) BuildFinished(seconds float64) {
	if m != nil {
		m.BuildDuration.Observe(seconds)
	}
}

// SearchFinished records one query. hits is ignored when err is non-nil.
func (m *Metrics) SearchFinished(mode string, seconds float64, hits int, err error) {
	if m == nil {
		return
	}
	m.SearchLatency.WithLabelValues(mode).Observe(seconds)
	switch {
	case err != nil:
		m.SearchQueriesTotal.WithLabelValues(mode, "error").Inc()
	case hits == 0:
		m.SearchQueriesTotal.WithLabelValues(mode, "zero_result").Inc()
		m.SearchResultsCount.Observe(0)
	default:
		m.SearchQueriesTotal.WithLabelValues(mode, "hit").Inc()
		m.SearchResultsCount.Observe(float64(hits))
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) BreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	}
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
