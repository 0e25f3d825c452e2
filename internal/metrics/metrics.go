// Package metrics exposes Prometheus instrumentation for search runs and
// backend traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_backend_requests_total",
			Help: "Total number of requests sent to the analytics backend",
		},
		[]string{"op", "status"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulseboard_backend_request_duration_seconds",
			Help:    "Duration of backend requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"op"},
	)

	FallbackServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_fallback_served_total",
			Help: "Total number of responses answered with canned fallback data",
		},
		[]string{"op"},
	)

	SearchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_search_runs_total",
			Help: "Total number of search runs by outcome",
		},
		[]string{"mode", "outcome"},
	)

	SearchRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulseboard_search_run_duration_seconds",
			Help:    "Wall-clock duration of search runs in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 120},
		},
		[]string{"mode"},
	)

	CollectionPollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulseboard_collection_poll_attempts",
			Help:    "Status checks needed before collection completed or timed out",
			Buckets: []float64{1, 2, 3, 5, 10, 15, 20, 25, 30},
		},
	)

	HTTPPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_http_panics_total",
			Help: "Total number of handler panics recovered, by route pattern",
		},
		[]string{"route"},
	)

	NormalizationDefectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_normalization_defects_total",
			Help: "Total number of backend records that could not be decoded",
		},
	)
)

// ObserveBackendRequest records one backend call. status is the HTTP status
// code, or "error" when no response arrived.
func ObserveBackendRequest(op, status string, d time.Duration) {
	BackendRequestsTotal.WithLabelValues(op, status).Inc()
	BackendRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordFallback counts a fallback response for op.
func RecordFallback(op string, _ error) {
	FallbackServedTotal.WithLabelValues(op).Inc()
}

// RecordRun records a finished search run.
func RecordRun(mode, outcome string, d time.Duration, pollAttempts int) {
	SearchRunsTotal.WithLabelValues(mode, outcome).Inc()
	SearchRunDuration.WithLabelValues(mode).Observe(d.Seconds())
	if pollAttempts > 0 {
		CollectionPollAttempts.Observe(float64(pollAttempts))
	}
}

// RecordDefects adds n normalization defects.
func RecordDefects(n int) {
	if n > 0 {
		NormalizationDefectsTotal.Add(float64(n))
	}
}

// RecordPanic counts a recovered handler panic. An empty route is recorded
// as "unmatched".
func RecordPanic(route string) {
	if route == "" {
		route = "unmatched"
	}
	HTTPPanicsTotal.WithLabelValues(route).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
