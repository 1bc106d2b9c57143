// Package metrics holds the Prometheus collectors of the retrieval service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			// http
			httpRequestDuration,
			httpRequestsTotal,
			httpInFlight,
			// embedding
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			// retrieval
			RetrievalRequestsTotal,
			RetrievalDuration,
			RetrievalResults,
			KeywordFallbackTotal,
			RerankTotal,
			RerankDuration,
			GroupStageTotal,
			MetadataCacheTotal,
		)
	})
}
