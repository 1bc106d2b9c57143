package ranking

// IntentBoost is the multiplier an item earns from intent agreement, with the
// rule that produced it.
type IntentBoost struct {
	Multiplier float64
	Reason     string
	// Similarity is the intent-embedding cosine when a semantic band decided, else 0.
	Similarity float64
}

// NoBoost is the neutral multiplier with a reason for observability.
func NoBoost(reason string) IntentBoost {
	return IntentBoost{Multiplier: 1, Reason: reason}
}

// Band returns the multiplier for an intent-embedding similarity s.
func (c IntentConfig) Band(s float64) float64 {
	for _, b := range c.SemanticBands {
		if s >= b.MinSimilarity {
			return b.Boost
		}
	}
	return 1
}

// KeywordBoost returns the fractional boost for matched declared keywords.
func (c KeywordConfig) KeywordBoost(matched int) float64 {
	if matched <= 0 {
		return 0
	}
	return min(c.MaxBoost, c.BoostPerMatch*float64(matched))
}

// Blend mixes the pre-rerank score with a normalized rerank score.
func (c RerankConfig) Blend(original, rerank float64) float64 {
	return c.OriginalWeight*original + c.RerankWeight*rerank
}
