// Package metrics provides Prometheus metrics for the elaboration pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Elaboration outcomes.
const (
	OutcomeCacheHit  = "cache_hit"
	OutcomeGenerated = "generated"
	OutcomeNoResults = "no_results"
	OutcomeError     = "error"
)

// Metrics holds the Prometheus collectors for Ansuz.
type Metrics struct {
	ElaborationsTotal   *prometheus.CounterVec
	ElaborationDuration *prometheus.HistogramVec
	SearchResultsFound  prometheus.Histogram
	HTTPRequestsTotal   *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ElaborationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ansuz_elaborations_total",
				Help: "Elaboration requests by outcome",
			},
			[]string{"outcome"},
		),
		ElaborationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ansuz_elaboration_duration_seconds",
				Help:    "Duration of elaboration requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		SearchResultsFound: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ansuz_search_results_found",
				Help:    "Number of web search results returned per pipeline run",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ansuz_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
	}
}

// ObserveElaboration records one finished elaboration request. Nil-safe
// so callers without a metrics sink can pass nil.
func (m *Metrics) ObserveElaboration(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ElaborationsTotal.WithLabelValues(outcome).Inc()
	m.ElaborationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveHTTPRequest counts one finished HTTP request.
func (m *Metrics) ObserveHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveSearchResults records how many results one search run found.
func (m *Metrics) ObserveSearchResults(n int) {
	if m == nil {
		return
	}
	m.SearchResultsFound.Observe(float64(n))
}
