// Package candidate defines the per-call ranking record and its strict ordering.
package candidate

import (
	"cmp"
	"slices"

	"github.com/kailas-cloud/hybridrank/internal/domain/content"
)

// SearchMethod records which index produced a candidate.
type SearchMethod string

const (
	// MethodVector marks candidates found by embedding similarity.
	MethodVector SearchMethod = "vector"
	// MethodKeywordFallback marks candidates added from the keyword index.
	MethodKeywordFallback SearchMethod = "keyword_fallback"
)

// Candidate is one ranked item within a single retrieval call.
//
// Base and IntentBoost are fixed at creation and Boosted is always their
// product. Later stages (keyword boost, rerank) only move Score.
type Candidate struct {
	Item         *content.Item
	Base         float64
	IntentBoost  float64
	IntentReason string
	Boosted      float64
	Method       SearchMethod

	// Score is the value the ranking sorts on.
	Score float64
	// KeywordBoost is the fractional keyword boost applied to Score, if any.
	KeywordBoost    float64
	MatchedKeywords []string

	// OriginalScore and RerankScore are set only when a reranker scored this candidate.
	OriginalScore *float64
	RerankScore   *float64

	// ScopeWeight is the first ordering key; set by the pipeline from the requesting tenant.
	ScopeWeight int
}

// New builds a candidate with Boosted = base × intentBoost. base is clamped to [0,1].
func New(item *content.Item, base, intentBoost float64, reason string, method SearchMethod) Candidate {
	base = clamp01(base)
	if intentBoost <= 0 {
		intentBoost = 1
	}
	boosted := base * intentBoost
	return Candidate{
		Item:         item,
		Base:         base,
		IntentBoost:  intentBoost,
		IntentReason: reason,
		Boosted:      boosted,
		Method:       method,
		Score:        boosted,
	}
}

// ID returns the candidate's item id.
func (c *Candidate) ID() int64 { return c.Item.ID }

// Compare orders candidates by scope weight desc, score desc, priority desc, id asc.
// Distinct item ids never compare equal, so the order is strict.
func Compare(a, b Candidate) int {
	if c := cmp.Compare(b.ScopeWeight, a.ScopeWeight); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Item.Priority, a.Item.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.Item.ID, b.Item.ID)
}

// Sort orders cs in place by Compare.
func Sort(cs []Candidate) {
	slices.SortStableFunc(cs, Compare)
}

// Dedupe drops later candidates whose item id was already seen, preserving order.
func Dedupe(cs []Candidate) []Candidate {
	seen := make(map[int64]struct{}, len(cs))
	out := cs[:0]
	for _, c := range cs {
		if _, ok := seen[c.ID()]; ok {
			continue
		}
		seen[c.ID()] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Truncate returns at most n candidates.
func Truncate(cs []Candidate, n int) []Candidate {
	if n >= 0 && len(cs) > n {
		return cs[:n]
	}
	return cs
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0: // NaN or negative
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Hit is a raw vector index match before ranking.
type Hit struct {
	Item       *content.Item
	Similarity float64
}
