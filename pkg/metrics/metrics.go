// Package metrics defines the Prometheus metric collectors used by the
// research engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ResearchRunsTotal    *prometheus.CounterVec
	ResearchRunDuration  prometheus.Histogram
	ResearchConfidence   prometheus.Histogram
	ResearchIterations   prometheus.Histogram
	StrategyExecutions   *prometheus.CounterVec
	StrategyResultsCount *prometheus.HistogramVec
	DocsIndexedTotal     prometheus.Counter
	ExtractionFailures   prometheus.Counter
	IndexBuildDuration   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg
// registers with the Prometheus default registry.
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
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ResearchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_runs_total",
				Help: "Research runs by final status (completed, aborted, failed, cancelled).",
			},
			[]string{"status"},
		),
		ResearchRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_run_duration_seconds",
				Help:    "Wall-clock duration of a research run.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		ResearchConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_confidence",
				Help:    "Confidence score of completed research runs.",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
		),
		ResearchIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_iterations",
				Help:    "Number of analysis passes per research run.",
				Buckets: []float64{1, 2, 3, 4, 5, 10},
			},
		),
		StrategyExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strategy_executions_total",
				Help: "Search strategy executions by strategy and outcome (ok, error, cached).",
			},
			[]string{"strategy", "outcome"},
		),
		StrategyResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strategy_results_count",
				Help:    "Number of results returned per strategy execution.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"strategy"},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		ExtractionFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "extraction_failures_total",
				Help: "Files skipped because content extraction failed.",
			},
		),
		IndexBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Index build latency by index kind.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"index"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of strategy cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of strategy cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ResearchRunsTotal,
		m.ResearchRunDuration,
		m.ResearchConfidence,
		m.ResearchIterations,
		m.StrategyExecutions,
		m.StrategyResultsCount,
		m.DocsIndexedTotal,
		m.ExtractionFailures,
		m.IndexBuildDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g. A nil g serves
// the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
