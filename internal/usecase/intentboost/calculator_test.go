package intentboost

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/query"
)

type fakeReader struct {
	mu    sync.Mutex
	vecs  map[int64][]float32
	err   error
	loads map[int64]int
}

func (f *fakeReader) IntentEmbedding(_ context.Context, id int64) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loads == nil {
		f.loads = map[int64]int{}
	}
	f.loads[id]++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vecs[id]
	if !ok {
		return nil, fmt.Errorf("intent %d: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

func newCalc(r *fakeReader) *Calculator {
	return New(ranking.DefaultConfig().Intent, r, zap.NewNop())
}

func mustQuery(t *testing.T, primary int64, secondary ...int64) query.Context {
	t.Helper()
	q, err := query.New("how do I pay rent", 1, primary, secondary, "tenant",
		query.Options{}, query.Defaults{TopK: 3, SimilarityThreshold: 0.6})
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return q
}

// unit returns a 2-d vector at angle whose cosine with (1,0) is cos.
func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func TestBoost_ExactMatches(t *testing.T) {
	c := newCalc(&fakeReader{})

	tests := []struct {
		name    string
		intents []int64
		q       query.Context
		want    float64
		reason  string
	}{
		{"primary", []int64{3, 1}, mustQuery(t, 1, 3), 1.1, ReasonPrimaryMatch},
		{"secondary", []int64{3}, mustQuery(t, 1, 3), 1.05, ReasonSecondaryMatch},
		{"no item intents", nil, mustQuery(t, 1), 1, ReasonNoItemIntents},
		{"no query intent", []int64{2}, mustQuery(t, 0), 1, ReasonNoQueryIntent},
		{"secondary without primary", []int64{4}, mustQuery(t, 0, 4), 1.05, ReasonSecondaryMatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Boost(context.Background(), tc.intents, tc.q)
			if got.Multiplier != tc.want || got.Reason != tc.reason {
				t.Errorf("Boost = %+v, want %v/%s", got, tc.want, tc.reason)
			}
		})
	}
}

func TestBoost_SemanticBands(t *testing.T) {
	tests := []struct {
		cos  float64
		want float64
	}{
		{0.95, 1.1},
		{0.86, 1.1},
		{0.75, 1.08},
		{0.60, 1.05},
		{0.45, 1.02},
		{0.20, 1.0},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.cos), func(t *testing.T) {
			r := &fakeReader{vecs: map[int64][]float32{1: {1, 0}, 2: unit(tc.cos)}}
			got := newCalc(r).Boost(context.Background(), []int64{2}, mustQuery(t, 1))
			if got.Multiplier != tc.want {
				t.Errorf("cos %v: multiplier = %v, want %v", tc.cos, got.Multiplier, tc.want)
			}
			if math.Abs(got.Similarity-tc.cos) > 1e-4 {
				t.Errorf("similarity = %v, want %v", got.Similarity, tc.cos)
			}
		})
	}
}

func TestBoost_SemanticTakesBestIntent(t *testing.T) {
	r := &fakeReader{vecs: map[int64][]float32{1: {1, 0}, 2: unit(0.5), 3: unit(0.9)}}

	got := newCalc(r).Boost(context.Background(), []int64{2, 3, 9}, mustQuery(t, 1))
	if got.Multiplier != 1.1 || got.Reason != ReasonSemantic {
		t.Errorf("Boost = %+v, want 1.1 semantic", got)
	}
}

func TestBoost_MissingEmbeddings(t *testing.T) {
	tests := []struct {
		name   string
		r      *fakeReader
		reason string
	}{
		{"query intent", &fakeReader{vecs: map[int64][]float32{2: {1, 0}}}, ReasonQueryEmbMissing},
		{"item intents", &fakeReader{vecs: map[int64][]float32{1: {1, 0}}}, ReasonItemEmbMissing},
		{"store down", &fakeReader{err: errors.New("timeout")}, ReasonQueryEmbMissing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := newCalc(tc.r).Boost(context.Background(), []int64{2}, mustQuery(t, 1))
			if got.Multiplier != 1 || got.Reason != tc.reason {
				t.Errorf("Boost = %+v, want 1/%s", got, tc.reason)
			}
		})
	}
}

func TestBoost_CachesEmbeddings(t *testing.T) {
	r := &fakeReader{vecs: map[int64][]float32{1: {1, 0}, 2: unit(0.9)}}
	c := newCalc(r)
	q := mustQuery(t, 1)

	for range 3 {
		c.Boost(context.Background(), []int64{2}, q)
	}
	if r.loads[1] != 1 || r.loads[2] != 1 {
		t.Errorf("loads = %v, want one per intent", r.loads)
	}

	c.Invalidate(2)
	c.Boost(context.Background(), []int64{2}, q)
	if r.loads[2] != 2 {
		t.Errorf("invalidated intent should reload, loads = %v", r.loads)
	}

	c.Clear()
	c.Boost(context.Background(), []int64{2}, q)
	if r.loads[1] != 2 || r.loads[2] != 3 {
		t.Errorf("clear should reload everything, loads = %v", r.loads)
	}
}
