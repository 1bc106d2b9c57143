package groupiso

import (
	"context"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/query"
)

// GroupStore reads procedure groups and their members.
type GroupStore interface {
	// TopGroup returns the tenant's group most similar to vector.
	// A tenant without groups yields domain.ErrNotFound.
	TopGroup(ctx context.Context, vector []float32, tenantID int64) (content.GroupMatch, error)
	// ItemsIn returns every member of the group in step order.
	ItemsIn(ctx context.Context, groupID int64) ([]*content.Item, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// IntentBooster computes the intent agreement multiplier of an item.
type IntentBooster interface {
	Boost(ctx context.Context, intentIDs []int64, q query.Context) ranking.IntentBoost
}

// TenantReader resolves tenant metadata.
type TenantReader interface {
	Tenant(ctx context.Context, tenantID int64) (*content.Tenant, error)
}
