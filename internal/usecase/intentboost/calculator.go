// Package intentboost scores agreement between a query's classified intents
// and the intents an item is tagged with.
package intentboost

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/cache"
	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/query"
	"github.com/kailas-cloud/hybridrank/internal/logger"
)

// Boost reasons.
const (
	ReasonPrimaryMatch     = "primary_intent_match"
	ReasonSecondaryMatch   = "secondary_intent_match"
	ReasonSemantic         = "semantic_intent_similarity"
	ReasonNoItemIntents    = "item_has_no_intents"
	ReasonNoQueryIntent    = "query_has_no_intent"
	ReasonQueryEmbMissing  = "query_intent_embedding_missing"
	ReasonItemEmbMissing   = "item_intent_embeddings_missing"
	ReasonBelowSemanticMin = "semantic_similarity_below_bands"
)

// Calculator computes intent boost multipliers. It never fails: missing
// data yields the neutral multiplier with a reason.
type Calculator struct {
	cfg        ranking.IntentConfig
	embeddings *cache.Cache[int64, []float32]
	logger     *zap.Logger
}

// New creates a calculator whose intent embeddings are read through a cache.
func New(cfg ranking.IntentConfig, reader EmbeddingReader, logger *zap.Logger) *Calculator {
	return &Calculator{
		cfg:        cfg,
		embeddings: cache.New("intent_embedding", reader.IntentEmbedding),
		logger:     logger,
	}
}

// Boost returns the multiplier for an item tagged with intentIDs.
// Exact matches win over the semantic fallback; primary wins over secondary.
func (c *Calculator) Boost(ctx context.Context, intentIDs []int64, q query.Context) ranking.IntentBoost {
	if len(intentIDs) == 0 {
		return ranking.NoBoost(ReasonNoItemIntents)
	}

	primary := q.PrimaryIntentID()
	if primary != 0 && slices.Contains(intentIDs, primary) {
		return ranking.IntentBoost{Multiplier: c.cfg.PrimaryMatchBoost, Reason: ReasonPrimaryMatch}
	}
	for _, id := range intentIDs {
		if q.IsSecondaryIntent(id) {
			return ranking.IntentBoost{Multiplier: c.cfg.SecondaryMatchBoost, Reason: ReasonSecondaryMatch}
		}
	}
	if primary == 0 {
		return ranking.NoBoost(ReasonNoQueryIntent)
	}

	return c.semantic(ctx, primary, intentIDs)
}

// semantic compares the query intent embedding against each tagged intent
// and applies the band of the best similarity.
func (c *Calculator) semantic(ctx context.Context, primary int64, intentIDs []int64) ranking.IntentBoost {
	qv := c.embedding(ctx, primary)
	if len(qv) == 0 {
		return ranking.NoBoost(ReasonQueryEmbMissing)
	}

	best, found := 0.0, false
	for _, id := range intentIDs {
		v := c.embedding(ctx, id)
		if len(v) == 0 {
			continue
		}
		found = true
		best = max(best, domain.CosineSimilarity(qv, v))
	}
	if !found {
		return ranking.NoBoost(ReasonItemEmbMissing)
	}

	m := c.cfg.Band(best)
	if m <= 1 {
		return ranking.IntentBoost{Multiplier: 1, Reason: ReasonBelowSemanticMin, Similarity: best}
	}
	return ranking.IntentBoost{Multiplier: m, Reason: ReasonSemantic, Similarity: best}
}

func (c *Calculator) embedding(ctx context.Context, intentID int64) []float32 {
	v, err := c.embeddings.Get(ctx, intentID)
	if err == nil {
		return v
	}
	log := logger.FromContextOr(ctx, c.logger)
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug("Intent embedding not found", zap.Int64("intent_id", intentID))
	} else {
		log.Warn("Intent embedding unavailable", zap.Int64("intent_id", intentID), zap.Error(err))
	}
	return nil
}

// Invalidate drops the cached embedding of one intent.
func (c *Calculator) Invalidate(intentID int64) { c.embeddings.Invalidate(intentID) }

// Clear drops every cached intent embedding.
func (c *Calculator) Clear() { c.embeddings.Clear() }
