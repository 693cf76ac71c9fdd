package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// 1. HTTP Requests Total (Counter)
	// Counts how many requests arrive, labeled by method, path, and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llahdb_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"}, // Labels
	)

	// 2. HTTP Request Duration (Histogram)
	// Measures server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llahdb_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 3. Registered documents (Gauge)
	Documents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "llahdb_documents_total",
			Help: "Number of registered documents",
		},
	)

	// 4. Stored features (Gauge)
	// Every landmark contributes C(N, M)*M features.
	Features = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "llahdb_features_total",
			Help: "Number of features stored in the hash table",
		},
	)

	// 5. Lookups (Counter)
	// outcome is "match" when at least one document was voted for, "miss" otherwise, "error" on bad input.
	Lookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llahdb_lookups_total",
			Help: "Total number of point set lookups",
		},
		[]string{"outcome"},
	)

	// 6. Lookup Duration (Histogram)
	LookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llahdb_lookup_duration_seconds",
			Help:    "Duration of point set lookups in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	// 7. Votes (Counter)
	Votes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llahdb_votes_total",
			Help: "Total number of votes cast by lookups",
		},
	)
)
