// Package metrics holds the Prometheus collectors for generation, tool calls,
// gateway traffic and query execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_generation_total",
			Help: "Generation calls by entry point and outcome.",
		},
		[]string{"entry", "outcome"},
	)
	generationTurns = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_generation_turns",
			Help:    "Model turns taken per generation call.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
		},
	)
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_tool_calls_total",
			Help: "Tool calls dispatched by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_gateway_requests_total",
			Help: "Model gateway requests by outcome.",
		},
		[]string{"outcome"},
	)
	gatewayLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_gateway_latency_seconds",
			Help:    "Model gateway round-trip latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
	)
	malformedOutputsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_malformed_outputs_total",
			Help: "Final model turns that were not a usable display payload.",
		},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_query_duration_seconds",
			Help:    "Read-only query execution time by kind.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind", "outcome"},
	)
	poolsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdb_pools_open",
			Help: "Connection pools currently held by the pool registry.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		generationsTotal,
		generationTurns,
		toolCallsTotal,
		gatewayRequestsTotal,
		gatewayLatencySeconds,
		malformedOutputsTotal,
		queryDurationSeconds,
		poolsOpen,
	)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveGeneration records a finished generation call.
func ObserveGeneration(entry string, turns int, err error) {
	generationsTotal.WithLabelValues(entry, outcome(err)).Inc()
	if turns > 0 {
		generationTurns.Observe(float64(turns))
	}
}

// ObserveToolCall records one tool dispatch.
func ObserveToolCall(tool string, err error) {
	toolCallsTotal.WithLabelValues(tool, outcome(err)).Inc()
}

// ObserveGatewayRequest records one model gateway round trip.
func ObserveGatewayRequest(elapsed time.Duration, err error) {
	gatewayRequestsTotal.WithLabelValues(outcome(err)).Inc()
	gatewayLatencySeconds.Observe(elapsed.Seconds())
}

// IncrementMalformedOutput counts a tolerated unusable final turn.
func IncrementMalformedOutput() {
	malformedOutputsTotal.Inc()
}

// ObserveQuery records a read-only execution of the given kind (query, sample, refresh).
func ObserveQuery(kind string, elapsed time.Duration, err error) {
	queryDurationSeconds.WithLabelValues(kind, outcome(err)).Observe(elapsed.Seconds())
}

// SetPoolsOpen publishes the pool registry size.
func SetPoolsOpen(n int) {
	poolsOpen.Set(float64(n))
}
