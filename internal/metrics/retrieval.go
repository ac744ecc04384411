package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval Prometheus metrics.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardex",
			Name:      "retrieval_requests_total",
			Help:      "Total store and query requests by outcome",
		},
		[]string{"operation", "outcome"}, // outcome: stored, skipped, suppressed, match, no_match, error
	)

	RetrievalRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardex",
			Name:      "retrieval_request_duration_seconds",
			Help:      "Store and query request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardex",
			Name:      "index_operations_total",
			Help:      "Total vector index calls",
		},
		[]string{"operation", "status"},
	)

	IndexRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardex",
			Name:      "index_repairs_total",
			Help:      "Collection repair attempts (delete and recreate)",
		},
		[]string{"status"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval and index metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalRequestDuration)
	prometheus.MustRegister(IndexOperationsTotal)
	prometheus.MustRegister(IndexRepairsTotal)
	retrievalMetricsRegistered = true
}
