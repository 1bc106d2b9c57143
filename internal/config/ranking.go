package config

import (
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
)

// RankingConfig overrides ranking thresholds. Unset (nil) values keep the
// built-in defaults, so a zero can still be configured explicitly.
type RankingConfig struct {
	Intent  IntentRanking  `yaml:"intent"`
	Keyword KeywordRanking `yaml:"keyword"`
	Rerank  RerankRanking  `yaml:"rerank"`
	Group   GroupRanking   `yaml:"group"`
	Scope   ScopeRanking   `yaml:"scope_weights"`
}

// IntentRanking overrides intent boosts.
type IntentRanking struct {
	PrimaryMatchBoost   *float64       `yaml:"primary_match_boost"`
	SecondaryMatchBoost *float64       `yaml:"secondary_match_boost"`
	SemanticBands       []SemanticBand `yaml:"semantic_bands"`
}

// SemanticBand is one similarity → boost step.
type SemanticBand struct {
	MinSimilarity float64 `yaml:"min_similarity"`
	Boost         float64 `yaml:"boost"`
}

// KeywordRanking overrides keyword boosting.
type KeywordRanking struct {
	BoostPerMatch   *float64 `yaml:"boost_per_match"`
	MaxBoost        *float64 `yaml:"max_boost"`
	CandidateWindow *int     `yaml:"candidate_window"`
}

// RerankRanking overrides the rerank blend.
type RerankRanking struct {
	OriginalWeight *float64 `yaml:"original_weight"`
	RerankWeight   *float64 `yaml:"rerank_weight"`
}

// GroupRanking overrides group isolation thresholds.
type GroupRanking struct {
	DirectEntry       *float64 `yaml:"direct_entry"`
	HybridFloor       *float64 `yaml:"hybrid_floor"`
	HybridGroupWeight *float64 `yaml:"hybrid_group_weight"`
	HybridItemWeight  *float64 `yaml:"hybrid_item_weight"`
	HybridEntry       *float64 `yaml:"hybrid_entry"`
	HighScore         *float64 `yaml:"high_score"`
	BroadRatio        *float64 `yaml:"broad_ratio"`
	BroadMinItems     *int     `yaml:"broad_min_items"`
	BiasMinCount      *int     `yaml:"bias_min_count"`
	GapThreshold      *float64 `yaml:"gap_threshold"`
	RunnerUpCeiling   *float64 `yaml:"runner_up_ceiling"`
}

// ScopeRanking overrides scope ordering weights.
type ScopeRanking struct {
	Customized *int `yaml:"customized"`
	Vendor     *int `yaml:"vendor"`
	Global     *int `yaml:"global"`
}

// RankingConfig merges the configured overrides onto ranking.DefaultConfig.
func (c *Config) RankingConfig() ranking.Config {
	r := ranking.DefaultConfig()
	o := c.Ranking

	set(&r.Intent.PrimaryMatchBoost, o.Intent.PrimaryMatchBoost)
	set(&r.Intent.SecondaryMatchBoost, o.Intent.SecondaryMatchBoost)
	if len(o.Intent.SemanticBands) > 0 {
		r.Intent.SemanticBands = make([]ranking.SemanticBand, len(o.Intent.SemanticBands))
		for i, b := range o.Intent.SemanticBands {
			r.Intent.SemanticBands[i] = ranking.SemanticBand{MinSimilarity: b.MinSimilarity, Boost: b.Boost}
		}
	}

	set(&r.Keyword.BoostPerMatch, o.Keyword.BoostPerMatch)
	set(&r.Keyword.MaxBoost, o.Keyword.MaxBoost)
	set(&r.Keyword.CandidateWindow, o.Keyword.CandidateWindow)

	set(&r.Rerank.OriginalWeight, o.Rerank.OriginalWeight)
	set(&r.Rerank.RerankWeight, o.Rerank.RerankWeight)
	if c.Reranker.MaxCandidatesFactor > 0 {
		r.Rerank.MaxCandidatesFactor = c.Reranker.MaxCandidatesFactor
	}

	g := o.Group
	set(&r.Group.DirectEntry, g.DirectEntry)
	set(&r.Group.HybridFloor, g.HybridFloor)
	set(&r.Group.HybridGroupWeight, g.HybridGroupWeight)
	set(&r.Group.HybridItemWeight, g.HybridItemWeight)
	set(&r.Group.HybridEntry, g.HybridEntry)
	set(&r.Group.HighScore, g.HighScore)
	set(&r.Group.BroadRatio, g.BroadRatio)
	set(&r.Group.BroadMinItems, g.BroadMinItems)
	set(&r.Group.BiasMinCount, g.BiasMinCount)
	set(&r.Group.GapThreshold, g.GapThreshold)
	set(&r.Group.RunnerUpCeiling, g.RunnerUpCeiling)

	r.Scope = content.ScopeWeights{
		Customized: pick(o.Scope.Customized, r.Scope.Customized),
		Vendor:     pick(o.Scope.Vendor, r.Scope.Vendor),
		Global:     pick(o.Scope.Global, r.Scope.Global),
	}

	return r
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func pick[T any](v *T, def T) T {
	if v != nil {
		return *v
	}
	return def
}
