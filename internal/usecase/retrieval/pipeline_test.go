package retrieval

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/candidate"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/query"
)

func newPipeline(src *fakeSource, emb *fakeEmbedder) *Pipeline[int64] {
	return New[int64](src, emb, fieldsTokenizer{}, fakeBooster{multiplier: 1.1},
		fakeTenants{tenant: &content.Tenant{ID: 7}}, ranking.DefaultConfig(), zap.NewNop())
}

func TestRank_BoostedEqualsBaseTimesBoost(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{
			item(1, withIntents(5), withKeywords("rent")),
			item(2, withKeywords("rent due")),
			item(3, withIntents(5)),
			item(4, withKeywords("due")),
		},
		sims: map[int64]float64{1: 0.9, 2: 0.8, 3: 0.7},
	}
	q, err := query.New("rent due", 7, 5, nil, "", query.Options{TopK: 5, SimilarityThreshold: floatPtr(0.5)},
		query.Defaults{KeywordFallback: true, KeywordBoost: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	p := newPipeline(src, &fakeEmbedder{}).WithReranker(&reverseReranker{})
	cs, err := p.Rank(context.Background(), q)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(cs) != 4 {
		t.Fatalf("got %d candidates, want 4", len(cs))
	}
	for _, c := range cs {
		if math.Abs(c.Boosted-c.Base*c.IntentBoost) > 1e-9 {
			t.Errorf("item %d: boosted %v != base %v × boost %v", c.ID(), c.Boosted, c.Base, c.IntentBoost)
		}
		if c.Base < 0 || c.Base > 1 {
			t.Errorf("item %d: base %v out of [0,1]", c.ID(), c.Base)
		}
	}
}

func TestRank_ThresholdNeverIncreasesCount(t *testing.T) {
	src := &fakeSource{sims: map[int64]float64{}}
	for i, s := range []float64{0.95, 0.85, 0.75, 0.65, 0.55, 0.45} {
		id := int64(i + 1)
		src.items = append(src.items, item(id, withKeywords("rent")))
		src.sims[id] = s
	}

	p := newPipeline(src, &fakeEmbedder{})
	prev := math.MaxInt
	for _, th := range []float64{0, 0.3, 0.5, 0.6, 0.75, 0.9, 1} {
		cs, err := p.Rank(context.Background(), newQuery("rent", 10, th, false, true))
		if err != nil {
			t.Fatalf("Rank(%v): %v", th, err)
		}
		if len(cs) > prev {
			t.Errorf("threshold %v returned %d results, more than %d at a lower threshold", th, len(cs), prev)
		}
		prev = len(cs)
	}
}

func TestRank_OutputBoundedByTopK(t *testing.T) {
	src := &fakeSource{sims: map[int64]float64{}}
	for i := range 10 {
		id := int64(i + 1)
		src.items = append(src.items, item(id, withKeywords("rent")))
		if id <= 5 {
			src.sims[id] = 0.9 - float64(i)*0.01
		}
	}

	for _, topK := range []int{1, 3, 7} {
		cs, err := newPipeline(src, &fakeEmbedder{}).Rank(context.Background(), newQuery("rent", topK, 0.5, true, true))
		if err != nil {
			t.Fatalf("Rank: %v", err)
		}
		if len(cs) > topK {
			t.Errorf("top_k=%d: got %d results", topK, len(cs))
		}
	}

	degraded := &fakeEmbedder{err: errDown}
	cs, err := newPipeline(src, degraded).Rank(context.Background(), newQuery("rent", 3, 0.5, true, true))
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(cs) != 3 {
		t.Errorf("keyword-only path: got %d results, want 3", len(cs))
	}
}

func TestRank_FallbackFillsDeficitWithoutDuplicates(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{
			item(1, withKeywords("rent")),
			item(2, withKeywords("rent")),
			item(3, withKeywords("rent payment")),
			item(4, withKeywords("parking")),
		},
		sims: map[int64]float64{1: 0.9},
	}

	cs, err := newPipeline(src, &fakeEmbedder{}).Rank(context.Background(), newQuery("rent payment", 3, 0.6, true, false))
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	got := ids(cs)
	slices.Sort(got)
	if !slices.Equal(got, []int64{1, 2, 3}) {
		t.Fatalf("ids = %v, want 1,2,3", got)
	}
	for _, c := range cs {
		want := candidate.MethodKeywordFallback
		if c.ID() == 1 {
			want = candidate.MethodVector
		}
		if c.Method != want {
			t.Errorf("item %d method = %s, want %s", c.ID(), c.Method, want)
		}
	}
	// deficit 2 plus 1 existing, times the candidate window of 3
	if len(src.keywordLimits) != 1 || src.keywordLimits[0] != 9 {
		t.Errorf("keyword candidate limits = %v, want [9]", src.keywordLimits)
	}
}

func TestRank_EmbeddingFailureFallsBackToKeywords(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{
			item(10, withKeywords("payment method card")),
			item(11, withKeywords("rent payment")),
			item(12, withKeywords("wifi")),
		},
	}
	rr := &reverseReranker{}
	p := newPipeline(src, &fakeEmbedder{err: errDown}).WithReranker(rr)

	cs, err := p.Rank(context.Background(), newQuery("rent payment deadline", 5, 0.6, true, true))
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !slices.Equal(ids(cs), []int64{11, 10}) {
		t.Fatalf("ids = %v, want [11 10]", ids(cs))
	}
	wantBase := map[int64]float64{11: 1.0, 10: 1.0 / 3}
	for _, c := range cs {
		if c.Method != candidate.MethodKeywordFallback {
			t.Errorf("item %d method = %s", c.ID(), c.Method)
		}
		if math.Abs(c.Base-wantBase[c.ID()]) > 1e-9 {
			t.Errorf("item %d base = %v, want %v", c.ID(), c.Base, wantBase[c.ID()])
		}
		if c.IntentBoost != 1 || c.Score != c.Base {
			t.Errorf("item %d: keyword-only results must not be boosted: %+v", c.ID(), c)
		}
	}
	if rr.calls != 0 {
		t.Error("reranker must not run on the keyword-only path")
	}
}

func TestRank_EmbeddingFailureWithoutFallbackIsEmpty(t *testing.T) {
	src := &fakeSource{items: []*content.Item{item(1, withKeywords("rent"))}}

	cs, err := newPipeline(src, &fakeEmbedder{err: errDown}).Rank(context.Background(), newQuery("rent", 3, 0.6, false, true))
	if err != nil {
		t.Fatalf("embedding failure must not surface: %v", err)
	}
	if len(cs) != 0 {
		t.Errorf("got %d results, want none", len(cs))
	}
	if len(src.keywordLimits) != 0 {
		t.Error("keyword index must not be queried when fallback is disabled")
	}
}

func TestRank_IndexFailureIsReturned(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
		emb  *fakeEmbedder
	}{
		{"vector", &fakeSource{vectorErr: errDown}, &fakeEmbedder{}},
		{"keyword fill", &fakeSource{keywordErr: errDown}, &fakeEmbedder{}},
		{"keyword only", &fakeSource{keywordErr: errDown}, &fakeEmbedder{err: errDown}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newPipeline(tc.src, tc.emb).Rank(context.Background(), newQuery("rent", 3, 0.6, true, true))
			if !errors.Is(err, domain.ErrIndexUnavailable) {
				t.Fatalf("expected ErrIndexUnavailable, got %v", err)
			}
			if !errors.Is(err, errDown) {
				t.Errorf("cause lost: %v", err)
			}
		})
	}
}

func TestRank_KeywordBoostReorders(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{
			item(1),
			item(2, withKeywords("rent", "deposit", "lease")),
		},
		sims: map[int64]float64{1: 0.8, 2: 0.7},
	}

	cs, err := newPipeline(src, &fakeEmbedder{}).Rank(context.Background(), newQuery("rent deposit refund", 3, 0.5, false, true))
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !slices.Equal(ids(cs), []int64{2, 1}) {
		t.Fatalf("ids = %v, want [2 1]", ids(cs))
	}
	c := cs[0]
	if math.Abs(c.KeywordBoost-0.2) > 1e-9 || math.Abs(c.Score-0.84) > 1e-9 {
		t.Errorf("boost = %v score = %v, want 0.2 and 0.84", c.KeywordBoost, c.Score)
	}
	if c.Boosted != 0.7 {
		t.Errorf("keyword boost must not change boosted similarity, got %v", c.Boosted)
	}
	if !slices.Equal(c.MatchedKeywords, []string{"rent", "deposit"}) {
		t.Errorf("matched keywords = %v", c.MatchedKeywords)
	}
}

func TestBoostScore_Cap(t *testing.T) {
	if got := boostScore(0.95, 0.3); got != 1 {
		t.Errorf("boostScore(0.95, 0.3) = %v, want 1", got)
	}
	if got := boostScore(1.045, 0.1); got != 1 {
		t.Errorf("boostScore(1.045, 0.1) = %v, want 1", got)
	}
	if got := boostScore(0.5, 0.1); math.Abs(got-0.55) > 1e-12 {
		t.Errorf("boostScore(0.5, 0.1) = %v", got)
	}
}

func TestRank_KeywordBoostCapsIntentBoostedScore(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{
			item(1, withIntents(5), withKeywords("rent")),
			item(2, withIntents(5)),
		},
		sims: map[int64]float64{1: 0.95, 2: 0.92},
	}
	q, err := query.New("rent", 7, 5, nil, content.RoleTenant, query.Options{
		TopK:                5,
		SimilarityThreshold: floatPtr(0.5),
		KeywordFallback:     boolPtr(false),
		KeywordBoost:        boolPtr(true),
	}, query.Defaults{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	cs, err := newPipeline(src, &fakeEmbedder{}).Rank(context.Background(), q)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got := ids(cs); !slices.Equal(got, []int64{2, 1}) {
		t.Fatalf("order = %v, want [2 1]", got)
	}
	if cs[1].Score != 1 {
		t.Errorf("keyword-boosted score = %v, want 1", cs[1].Score)
	}
	if cs[1].KeywordBoost != 0.1 {
		t.Errorf("keyword boost = %v, want 0.1", cs[1].KeywordBoost)
	}
	if math.Abs(cs[0].Score-0.92*1.1) > 1e-9 {
		t.Errorf("unboosted score = %v, want %v", cs[0].Score, 0.92*1.1)
	}
}

func TestRank_ScopeWeightOrdersFirst(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{
			item(1),
			item(2, ownedBy(7, content.ScopeCustomized)),
			item(3, ownedBy(7, content.ScopeVendor)),
		},
		sims: map[int64]float64{1: 0.95, 2: 0.7, 3: 0.8},
	}

	cs, err := newPipeline(src, &fakeEmbedder{}).Rank(context.Background(), newQuery("q", 5, 0.5, false, false))
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !slices.Equal(ids(cs), []int64{2, 3, 1}) {
		t.Errorf("ids = %v, want [2 3 1]", ids(cs))
	}
}

func TestRank_DeterministicTieBreak(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{
			item(4, withPriority(1)),
			item(2),
			item(3),
		},
		sims: map[int64]float64{2: 0.8, 3: 0.8, 4: 0.8},
	}
	p := newPipeline(src, &fakeEmbedder{})
	q := newQuery("q", 5, 0.5, false, false)

	first, err := p.Rank(context.Background(), q)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !slices.Equal(ids(first), []int64{4, 2, 3}) {
		t.Fatalf("ids = %v, want [4 2 3]", ids(first))
	}
	for range 5 {
		again, _ := p.Rank(context.Background(), q)
		if !slices.Equal(ids(again), ids(first)) {
			t.Fatalf("non-deterministic order: %v vs %v", ids(again), ids(first))
		}
	}
}

func TestRank_ApplicabilityEnforced(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{
			item(1, ownedBy(8, content.ScopeVendor)),
			item(2, func(it *content.Item) { it.BusinessTypes = []string{"residential"} }),
			item(3),
		},
		sims: map[int64]float64{1: 0.99, 2: 0.9, 3: 0.8},
	}

	// tenant lookup failure leaves the audience without business types
	p := New[int64](src, &fakeEmbedder{}, fieldsTokenizer{}, nil, fakeTenants{err: errDown},
		ranking.DefaultConfig(), zap.NewNop())
	cs, err := p.Rank(context.Background(), newQuery("q", 5, 0.5, false, false))
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !slices.Equal(ids(cs), []int64{3}) {
		t.Errorf("ids = %v, want [3]", ids(cs))
	}

	p = New[int64](src, &fakeEmbedder{}, fieldsTokenizer{}, nil,
		fakeTenants{tenant: &content.Tenant{ID: 7, BusinessTypes: []string{"residential"}}},
		ranking.DefaultConfig(), zap.NewNop())
	cs, err = p.Rank(context.Background(), newQuery("q", 5, 0.5, false, false))
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !slices.Equal(ids(cs), []int64{2, 3}) {
		t.Errorf("ids = %v, want [2 3]", ids(cs))
	}
}

func TestRank_RerankerRunsAfterBoost(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{item(1), item(2), item(3)},
		sims:  map[int64]float64{1: 0.9, 2: 0.8, 3: 0.7},
	}
	rr := &reverseReranker{}

	cs, err := newPipeline(src, &fakeEmbedder{}).WithReranker(rr).
		Rank(context.Background(), newQuery("q", 2, 0.5, false, false))
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if rr.calls != 1 {
		t.Fatalf("reranker calls = %d, want 1", rr.calls)
	}
	if !slices.Equal(ids(cs), []int64{2, 1}) {
		t.Errorf("ids = %v, want [2 1]", ids(cs))
	}
}

func TestRetrieve_Formats(t *testing.T) {
	src := &fakeSource{
		items: []*content.Item{item(1), item(2)},
		sims:  map[int64]float64{1: 0.7, 2: 0.9},
	}

	out, err := newPipeline(src, &fakeEmbedder{}).Retrieve(context.Background(), newQuery("q", 3, 0.5, false, false))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !slices.Equal(out, []int64{2, 1}) {
		t.Errorf("Retrieve = %v, want [2 1]", out)
	}
}

func TestMatchKeywords(t *testing.T) {
	q := newTokenSet(fieldsTokenizer{}, "How do I pay rent online")
	m := matchKeywords(fieldsTokenizer{}, q, []string{"pay rent", "rent online portal", "parking", ""})

	if !slices.Equal(m.matched, []string{"pay rent", "rent online portal"}) {
		t.Fatalf("matched = %v", m.matched)
	}
	want := (1.0 + 2.0/3) / 2
	if math.Abs(m.ratio-want) > 1e-12 {
		t.Errorf("ratio = %v, want %v", m.ratio, want)
	}

	if empty := matchKeywords(fieldsTokenizer{}, tokenSet{}, []string{"rent"}); len(empty.matched) != 0 {
		t.Errorf("empty query must not match: %v", empty.matched)
	}
}
