package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_requests_total",
			Help:      "Retrieval requests by source and outcome",
		},
		[]string{"source", "outcome"}, // outcome: ok / empty / degraded / error
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "End-to-end retrieval duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	RetrievalResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Number of results returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50, 100},
		},
		[]string{"source"},
	)

	KeywordFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyword_fallback_total",
			Help:      "Keyword fallback activations",
		},
		[]string{"source", "reason"}, // reason: embedding_failed / insufficient_results
	)

	RerankTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_total",
			Help:      "Rerank attempts by outcome",
		},
		[]string{"source", "outcome"}, // outcome: applied / failed / skipped
	)

	RerankDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rerank_request_duration_seconds",
			Help:      "Semantic model rerank request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
	)

	GroupStageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_isolation_decisions_total",
			Help:      "Group isolation stage outcomes",
		},
		[]string{"stage", "outcome"},
	)

	MetadataCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_total",
			Help:      "Metadata cache lookups by cache and result",
		},
		[]string{"cache", "result"}, // result: hit / miss / error
	)
)
