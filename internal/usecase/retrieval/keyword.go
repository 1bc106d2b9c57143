package retrieval

// keywordMatch is the overlap between query tokens and an item's declared keywords.
type keywordMatch struct {
	// matched lists declared keywords sharing at least one token with the query.
	matched []string
	// ratio is the mean per-keyword token overlap over matched keywords, capped at 1.
	ratio float64
}

type tokenSet map[string]struct{}

func newTokenSet(tok Tokenizer, text string) tokenSet {
	tokens := tok.Tokens(text)
	set := make(tokenSet, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func matchKeywords(tok Tokenizer, q tokenSet, keywords []string) keywordMatch {
	var m keywordMatch
	if len(q) == 0 {
		return m
	}

	var sum float64
	for _, kw := range keywords {
		kwTokens := tok.Tokens(kw)
		if len(kwTokens) == 0 {
			continue
		}
		shared := 0
		for _, t := range kwTokens {
			if _, ok := q[t]; ok {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		m.matched = append(m.matched, kw)
		sum += float64(shared) / float64(len(kwTokens))
	}

	if len(m.matched) > 0 {
		m.ratio = min(1, sum/float64(len(m.matched)))
	}
	return m
}

// boostScore raises score by the fractional boost, capped at 1.
// An intent-boosted score above 1 is capped as well.
func boostScore(score, boost float64) float64 {
	return min(1, score*(1+boost))
}
