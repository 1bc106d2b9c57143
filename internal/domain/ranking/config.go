// Package ranking centralizes every numeric threshold and weight used by the
// retrieval pipeline, the intent boost calculator and the group isolation
// resolver. Values are injected; nothing downstream hard-codes them.
package ranking

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/hybridrank/internal/domain/content"
)

// SemanticBand maps a minimum intent-embedding similarity to a boost multiplier.
type SemanticBand struct {
	MinSimilarity float64
	Boost         float64
}

// IntentConfig drives the intent boost calculator.
type IntentConfig struct {
	// PrimaryMatchBoost applies when a candidate is tagged with the query's primary intent.
	PrimaryMatchBoost float64
	// SecondaryMatchBoost applies when a candidate is tagged with a secondary intent.
	SecondaryMatchBoost float64
	// SemanticBands are evaluated in order; the first band whose MinSimilarity
	// is reached wins. Bands must be sorted by MinSimilarity descending.
	SemanticBands []SemanticBand
}

// KeywordConfig drives the keyword boost applied after retrieval.
type KeywordConfig struct {
	// BoostPerMatch is added per declared keyword that overlaps the query.
	BoostPerMatch float64
	// MaxBoost caps the accumulated boost.
	MaxBoost float64
	// CandidateWindow multiplies the keyword search limit when fetching candidates.
	CandidateWindow int
}

// RerankConfig blends the reranker score with the pre-rerank score.
type RerankConfig struct {
	OriginalWeight float64
	RerankWeight   float64
	// MaxCandidatesFactor caps reranked candidates at factor × top_k.
	MaxCandidatesFactor int
}

// GroupConfig holds the group isolation thresholds.
type GroupConfig struct {
	// DirectEntry: best group similarity strictly above this enters the group.
	DirectEntry float64
	// HybridFloor: best group similarity strictly above this triggers the hybrid check.
	HybridFloor float64
	// HybridGroupWeight and HybridItemWeight blend group and best-item similarity.
	HybridGroupWeight float64
	HybridItemWeight  float64
	// HybridEntry: the blended score must be strictly above this to enter.
	HybridEntry float64
	// HighScore marks an item as high-scoring (inclusive).
	HighScore float64
	// BroadRatio: share of high items strictly above this reads as a broad query.
	BroadRatio float64
	// BroadMinItems is the minimum group size for the broad-query rule.
	BroadMinItems int
	// BiasMinCount high items (inclusive) make the query biased.
	BiasMinCount int
	// GapThreshold: top1-top2 strictly above this isolates the leader.
	GapThreshold float64
	// RunnerUpCeiling: top2 strictly below this isolates the leader.
	RunnerUpCeiling float64
}

// Config is the complete set of ranking knobs.
type Config struct {
	Intent  IntentConfig
	Keyword KeywordConfig
	Rerank  RerankConfig
	Group   GroupConfig
	Scope   content.ScopeWeights
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Intent: IntentConfig{
			PrimaryMatchBoost:   1.1,
			SecondaryMatchBoost: 1.05,
			SemanticBands: []SemanticBand{
				{MinSimilarity: 0.85, Boost: 1.1},
				{MinSimilarity: 0.70, Boost: 1.08},
				{MinSimilarity: 0.55, Boost: 1.05},
				{MinSimilarity: 0.40, Boost: 1.02},
			},
		},
		Keyword: KeywordConfig{
			BoostPerMatch:   0.1,
			MaxBoost:        0.3,
			CandidateWindow: 3,
		},
		Rerank: RerankConfig{
			OriginalWeight:      0.1,
			RerankWeight:        0.9,
			MaxCandidatesFactor: 2,
		},
		Group: GroupConfig{
			DirectEntry:       0.75,
			HybridFloor:       0.65,
			HybridGroupWeight: 0.3,
			HybridItemWeight:  0.7,
			HybridEntry:       0.75,
			HighScore:         0.80,
			BroadRatio:        0.7,
			BroadMinItems:     3,
			BiasMinCount:      3,
			GapThreshold:      0.10,
			RunnerUpCeiling:   0.75,
		},
		Scope: content.DefaultScopeWeights(),
	}
}

// Validate checks ranges and internal consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Intent.PrimaryMatchBoost < 1 || c.Intent.SecondaryMatchBoost < 1 {
		errs = append(errs, errors.New("intent match boosts must be >= 1"))
	}
	for i, b := range c.Intent.SemanticBands {
		if !unit(b.MinSimilarity) {
			errs = append(errs, fmt.Errorf("intent.semantic_bands[%d].min_similarity out of [0,1]", i))
		}
		if b.Boost < 1 {
			errs = append(errs, fmt.Errorf("intent.semantic_bands[%d].boost must be >= 1", i))
		}
		if i > 0 && b.MinSimilarity > c.Intent.SemanticBands[i-1].MinSimilarity {
			errs = append(errs, errors.New("intent.semantic_bands must be sorted by min_similarity descending"))
		}
	}

	if c.Keyword.BoostPerMatch < 0 || c.Keyword.MaxBoost < 0 {
		errs = append(errs, errors.New("keyword boosts must be non-negative"))
	}
	if c.Keyword.CandidateWindow < 1 {
		errs = append(errs, errors.New("keyword.candidate_window must be >= 1"))
	}

	if c.Rerank.OriginalWeight < 0 || c.Rerank.RerankWeight < 0 {
		errs = append(errs, errors.New("rerank weights must be non-negative"))
	}
	if c.Rerank.MaxCandidatesFactor < 1 {
		errs = append(errs, errors.New("rerank.max_candidates_factor must be >= 1"))
	}

	g := c.Group
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"direct_entry", g.DirectEntry},
		{"hybrid_floor", g.HybridFloor},
		{"hybrid_group_weight", g.HybridGroupWeight},
		{"hybrid_item_weight", g.HybridItemWeight},
		{"hybrid_entry", g.HybridEntry},
		{"high_score", g.HighScore},
		{"broad_ratio", g.BroadRatio},
		{"gap_threshold", g.GapThreshold},
		{"runner_up_ceiling", g.RunnerUpCeiling},
	} {
		if !unit(f.v) {
			errs = append(errs, fmt.Errorf("group.%s out of [0,1]", f.name))
		}
	}
	if g.HybridFloor > g.DirectEntry {
		errs = append(errs, errors.New("group.hybrid_floor must not exceed group.direct_entry"))
	}
	if g.BroadMinItems < 1 || g.BiasMinCount < 1 {
		errs = append(errs, errors.New("group.broad_min_items and group.bias_min_count must be >= 1"))
	}

	return errors.Join(errs...)
}

func unit(v float64) bool { return v >= 0 && v <= 1 }
