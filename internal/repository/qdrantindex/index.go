// Package qdrantindex serves item vector and keyword candidate queries from a
// Qdrant collection with named "primary" and "fallback" vectors.
package qdrantindex

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/candidate"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/filter"
)

// client is the subset of *qdrant.Client the index uses.
type client interface {
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
}

// Index queries one collection holding items of a single kind.
type Index struct {
	client     client
	collection string
	kind       content.Kind
	dims       int
	ownedOnly  bool
}

// Config configures a Qdrant connection.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Dial opens a Qdrant gRPC client.
func Dial(cfg Config) (*qdrant.Client, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return c, nil
}

// New creates an index over collection.
func New(c client, collection string, kind content.Kind, dims int) *Index {
	return &Index{client: c, collection: collection, kind: kind, dims: dims}
}

// WithOwnedOnly restricts queries to the requesting tenant's own items.
func (x *Index) WithOwnedOnly() *Index {
	x.ownedOnly = true
	return x
}

// EnsureCollection creates the collection and its payload indexes when missing.
func (x *Index) EnsureCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", x.collection, err)
	}
	if exists {
		return nil
	}

	params := &qdrant.VectorParams{Size: uint64(x.dims), Distance: qdrant.Distance_Cosine}
	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			content.FieldPrimary:  params,
			content.FieldFallback: params,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", x.collection, err)
	}

	indexes := map[string]qdrant.FieldType{
		content.FieldScope:         qdrant.FieldType_FieldTypeKeyword,
		content.FieldTenant:        qdrant.FieldType_FieldTypeKeyword,
		content.FieldBusinessTypes: qdrant.FieldType_FieldTypeKeyword,
		content.FieldRoles:         qdrant.FieldType_FieldTypeKeyword,
		content.FieldHasKeywords:   qdrant.FieldType_FieldTypeKeyword,
		content.FieldActive:        qdrant.FieldType_FieldTypeKeyword,
		content.FieldGroup:         qdrant.FieldType_FieldTypeKeyword,
		content.FieldPriority:      qdrant.FieldType_FieldTypeInteger,
	}
	for _, name := range sortedKeys(indexes) {
		_, err := x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: x.collection,
			FieldName:      name,
			FieldType:      indexes[name].Enum(),
		})
		if err != nil {
			return fmt.Errorf("index %s.%s: %w", x.collection, name, err)
		}
	}
	return nil
}

// VectorSearch queries both named vectors concurrently and keeps each item's better score.
func (x *Index) VectorSearch(
	ctx context.Context, vector []float32, aud content.Audience, threshold float64, limit int,
) ([]candidate.Hit, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, nil
	}

	flt := toFilter(aud.Filter(x.ownedOnly))
	using := []string{content.FieldPrimary, content.FieldFallback}
	results := make([][]*qdrant.ScoredPoint, len(using))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range using {
		g.Go(func() error {
			pts, err := x.client.Query(gctx, &qdrant.QueryPoints{
				CollectionName: x.collection,
				Query:          qdrant.NewQuery(vector...),
				Using:          qdrant.PtrOf(name),
				Filter:         flt,
				ScoreThreshold: qdrant.PtrOf(float32(threshold)),
				Limit:          qdrant.PtrOf(uint64(limit)),
				WithPayload:    qdrant.NewWithPayload(true),
			})
			if err != nil {
				return fmt.Errorf("qdrant query %s using %s: %w", x.collection, name, err)
			}
			results[i] = pts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := make(map[int64]candidate.Hit)
	for _, pts := range results {
		for _, p := range pts {
			it, err := decodePayload(x.kind, p.GetPayload())
			if err != nil {
				return nil, fmt.Errorf("decode point %d: %w", p.GetId().GetNum(), err)
			}
			sim := domain.Clamp01(float64(p.GetScore()))
			if prev, ok := best[it.ID]; !ok || sim > prev.Similarity {
				best[it.ID] = candidate.Hit{Item: it, Similarity: sim}
			}
		}
	}

	hits := make([]candidate.Hit, 0, len(best))
	for _, h := range best {
		if h.Similarity >= threshold {
			hits = append(hits, h)
		}
	}
	slices.SortFunc(hits, func(a, b candidate.Hit) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// KeywordCandidates scrolls applicable items with keywords, highest priority first.
func (x *Index) KeywordCandidates(ctx context.Context, aud content.Audience, limit int) ([]*content.Item, error) {
	if limit <= 0 {
		return nil, nil
	}

	expr := aud.Filter(x.ownedOnly).And(filter.MustMatchAny(content.FieldHasKeywords, content.TagTrue))
	pts, err := x.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: x.collection,
		Filter:         toFilter(expr),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		OrderBy: &qdrant.OrderBy{
			Key:       content.FieldPriority,
			Direction: qdrant.Direction_Desc.Enum(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll %s: %w", x.collection, err)
	}

	items := make([]*content.Item, 0, len(pts))
	for _, p := range pts {
		it, err := decodePayload(x.kind, p.GetPayload())
		if err != nil {
			return nil, fmt.Errorf("decode point %d: %w", p.GetId().GetNum(), err)
		}
		items = append(items, it)
	}
	slices.SortStableFunc(items, func(a, b *content.Item) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return items, nil
}

// toFilter maps every tag condition to a keyword any-of match.
func toFilter(expr filter.Expression) *qdrant.Filter {
	if expr.IsEmpty() {
		return nil
	}
	f := &qdrant.Filter{}
	for _, c := range expr.Must() {
		f.Must = append(f.Must, qdrant.NewMatchKeywords(c.Key(), c.Values()...))
	}
	for _, c := range expr.MustNot() {
		f.MustNot = append(f.MustNot, qdrant.NewMatchKeywords(c.Key(), c.Values()...))
	}
	return f
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
