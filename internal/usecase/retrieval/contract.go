package retrieval

import (
	"context"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/candidate"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/query"
)

// Source is one retrievable content family. The pipeline owns ranking;
// a Source only knows how to query its indexes and render results.
type Source[T any] interface {
	// Name labels logs and metrics.
	Name() string
	// VectorSearch returns up to limit applicable items whose similarity to
	// vector is at least threshold, best first.
	VectorSearch(
		ctx context.Context, vector []float32, aud content.Audience, threshold float64, limit int,
	) ([]candidate.Hit, error)
	// KeywordCandidates returns up to limit applicable items that declare
	// keywords, ordered by priority desc then id asc.
	KeywordCandidates(ctx context.Context, aud content.Audience, limit int) ([]*content.Item, error)
	// Format renders a ranked candidate.
	Format(c candidate.Candidate) T
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Tokenizer splits text into distinct lowercase tokens.
type Tokenizer interface {
	Tokens(text string) []string
}

// IntentBooster computes the intent agreement multiplier of an item.
type IntentBooster interface {
	Boost(ctx context.Context, intentIDs []int64, q query.Context) ranking.IntentBoost
}

// TenantReader resolves tenant metadata. Missing tenants yield domain.ErrNotFound.
type TenantReader interface {
	Tenant(ctx context.Context, tenantID int64) (*content.Tenant, error)
}

// Reranker reorders candidates with a relevance model. It never fails:
// on any problem it returns cs unchanged.
type Reranker interface {
	Rerank(ctx context.Context, queryText string, cs []candidate.Candidate, topK int) []candidate.Candidate
}
