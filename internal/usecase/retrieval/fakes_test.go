package retrieval

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/candidate"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/query"
)

var errDown = errors.New("connection refused")

// fakeSource serves a fixed item set; similarity comes from sims by item id.
type fakeSource struct {
	items      []*content.Item
	sims       map[int64]float64
	vectorErr  error
	keywordErr error

	keywordLimits []int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) VectorSearch(
	_ context.Context, _ []float32, _ content.Audience, threshold float64, limit int,
) ([]candidate.Hit, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	var hits []candidate.Hit
	for _, it := range f.items {
		s, ok := f.sims[it.ID]
		if !ok || s < threshold {
			continue
		}
		hits = append(hits, candidate.Hit{Item: it, Similarity: s})
	}
	slices.SortFunc(hits, func(a, b candidate.Hit) int {
		return cmp.Or(cmp.Compare(b.Similarity, a.Similarity), cmp.Compare(a.Item.ID, b.Item.ID))
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeSource) KeywordCandidates(_ context.Context, _ content.Audience, limit int) ([]*content.Item, error) {
	f.keywordLimits = append(f.keywordLimits, limit)
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	var out []*content.Item
	for _, it := range f.items {
		if len(it.Keywords) > 0 {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b *content.Item) int {
		return cmp.Or(cmp.Compare(b.Priority, a.Priority), cmp.Compare(a.ID, b.ID))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSource) Format(c candidate.Candidate) int64 { return c.ID() }

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	f.calls++
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

// fieldsTokenizer splits on whitespace, lowercased and de-duplicated.
type fieldsTokenizer struct{}

func (fieldsTokenizer) Tokens(text string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(text)) {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// fakeBooster boosts items tagged with the query's primary intent.
type fakeBooster struct{ multiplier float64 }

func (f fakeBooster) Boost(_ context.Context, ids []int64, q query.Context) ranking.IntentBoost {
	if q.PrimaryIntentID() != 0 && slices.Contains(ids, q.PrimaryIntentID()) {
		return ranking.IntentBoost{Multiplier: f.multiplier, Reason: "primary"}
	}
	return ranking.NoBoost("none")
}

type fakeTenants struct {
	tenant *content.Tenant
	err    error
}

func (f fakeTenants) Tenant(_ context.Context, _ int64) (*content.Tenant, error) {
	return f.tenant, f.err
}

// reverseReranker reverses the order and marks every candidate as reranked.
type reverseReranker struct{ calls int }

func (r *reverseReranker) Rerank(
	_ context.Context, _ string, cs []candidate.Candidate, _ int,
) []candidate.Candidate {
	r.calls++
	out := slices.Clone(cs)
	slices.Reverse(out)
	return out
}

func item(id int64, opts ...func(*content.Item)) *content.Item {
	it := &content.Item{ID: id, Kind: content.KindKnowledge, Scope: content.ScopeGlobal, Active: true}
	for _, o := range opts {
		o(it)
	}
	return it
}

func withKeywords(kws ...string) func(*content.Item) {
	return func(it *content.Item) { it.Keywords = kws }
}

func withIntents(ids ...int64) func(*content.Item) {
	return func(it *content.Item) { it.IntentIDs = ids }
}

func withPriority(p int) func(*content.Item) {
	return func(it *content.Item) { it.Priority = p }
}

func ownedBy(tenantID int64, scope content.Scope) func(*content.Item) {
	return func(it *content.Item) {
		it.TenantID = tenantID
		it.Scope = scope
	}
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func newQuery(text string, topK int, threshold float64, fallback, boost bool) query.Context {
	q, err := query.New(text, 7, 0, nil, content.RoleTenant, query.Options{
		TopK:                topK,
		SimilarityThreshold: floatPtr(threshold),
		KeywordFallback:     boolPtr(fallback),
		KeywordBoost:        boolPtr(boost),
	}, query.Defaults{TopK: 3, SimilarityThreshold: 0.6})
	if err != nil {
		panic(err)
	}
	return q
}

func ids(cs []candidate.Candidate) []int64 {
	out := make([]int64, len(cs))
	for i := range cs {
		out[i] = cs[i].ID()
	}
	return out
}
