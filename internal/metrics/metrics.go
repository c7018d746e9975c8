// Package metrics provides Prometheus metrics for the engine and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SuggestionsTotal counts suggestions by the step that produced them.
	// Labels: source (exact, partial, keyword, none)
	SuggestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hot",
			Subsystem: "engine",
			Name:      "suggestions_total",
			Help:      "Total number of suggestions by decision source",
		},
		[]string{"source"},
	)

	// SuggestDuration tracks end-to-end suggestion latency.
	SuggestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hot",
			Subsystem: "engine",
			Name:      "suggest_duration_seconds",
			Help:      "Duration of suggest calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// StoreFaultsTotal counts library failures the engine degraded past.
	// Labels: op (list, upsert)
	StoreFaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hot",
			Subsystem: "engine",
			Name:      "store_faults_total",
			Help:      "Total number of library store faults",
		},
		[]string{"op"},
	)

	// ConfirmationsTotal counts library writes.
	// Labels: result (created, updated, error)
	ConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hot",
			Subsystem: "library",
			Name:      "confirmations_total",
			Help:      "Total number of confirmed classifications written to the library",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts API requests.
	// Labels: method, route (echo route pattern), status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks API latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"method", "route"},
	)
)
