// Package item is the Redis-backed item index shared by knowledge and
// procedure sources: dual-vector KNN, keyword candidate listing and group members.
package item

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/hybridrank/internal/db"
	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/candidate"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/filter"
)

// maxGroupItems bounds a single group listing.
const maxGroupItems = 1000

// store is the consumer interface for item reads (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// Repo queries one content kind.
type Repo struct {
	store     store
	kind      content.Kind
	prefix    string
	dims      int
	ownedOnly bool
}

// New creates an item repository for kind.
func New(s store, kind content.Kind, prefix string, dims int) *Repo {
	return &Repo{store: s, kind: kind, prefix: prefix, dims: dims}
}

// WithOwnedOnly restricts vector and keyword queries to the requesting tenant's own items.
func (r *Repo) WithOwnedOnly() *Repo {
	r.ownedOnly = true
	return r
}

// Kind returns the content kind served by this repository.
func (r *Repo) Kind() content.Kind { return r.kind }

// EnsureIndex creates the kind's index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	name := IndexName(r.prefix, r.kind)
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}

	def, err := IndexDefinition(r.prefix, r.kind, r.dims)
	if err != nil {
		return fmt.Errorf("build index %s: %w", name, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// VectorSearch runs KNN against the primary and fallback vectors concurrently
// and keeps each item's better similarity.
func (r *Repo) VectorSearch(
	ctx context.Context, vector []float32, aud content.Audience, threshold float64, limit int,
) ([]candidate.Hit, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, nil
	}

	filters := aud.Filter(r.ownedOnly)
	fields := []string{content.FieldPrimary, content.FieldFallback}
	results := make([]*db.SearchResult, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	for i, field := range fields {
		g.Go(func() error {
			res, err := r.store.SearchKNN(gctx, &db.KNNQuery{
				IndexName:    IndexName(r.prefix, r.kind),
				VectorField:  field,
				Filters:      filters,
				Vector:       vector,
				K:            limit,
				ReturnFields: metaFields,
			})
			if err != nil {
				return fmt.Errorf("knn %s on %s: %w", r.kind, field, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := make(map[int64]candidate.Hit)
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, e := range res.Entries {
			it, err := decode(r.kind, e.Fields)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", e.Key, err)
			}
			if prev, ok := best[it.ID]; !ok || e.Score > prev.Similarity {
				best[it.ID] = candidate.Hit{Item: it, Similarity: e.Score}
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

// KeywordCandidates lists applicable items that declare keywords, highest priority first.
func (r *Repo) KeywordCandidates(ctx context.Context, aud content.Audience, limit int) ([]*content.Item, error) {
	if limit <= 0 {
		return nil, nil
	}

	res, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName:    IndexName(r.prefix, r.kind),
		Filters:      aud.Filter(r.ownedOnly).And(filter.MustMatchAny(content.FieldHasKeywords, content.TagTrue)),
		SortBy:       content.FieldPriority,
		Descending:   true,
		Limit:        limit,
		ReturnFields: metaFields,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s keyword candidates: %w", r.kind, err)
	}

	items, err := r.decodeAll(res)
	if err != nil {
		return nil, err
	}
	sortByPriority(items)
	return items, nil
}

// ByGroup returns every member of a group with vectors, in step order
// (priority desc, then id).
func (r *Repo) ByGroup(ctx context.Context, groupID int64) ([]*content.Item, error) {
	expr, err := filter.NewExpression([]filter.Condition{
		filter.MustMatchAny(content.FieldGroup, strconv.FormatInt(groupID, 10)),
	}, nil)
	if err != nil {
		return nil, err
	}

	res, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName: IndexName(r.prefix, r.kind),
		Filters:   expr,
		Limit:     maxGroupItems,
	})
	if err != nil {
		return nil, fmt.Errorf("list group %d: %w", groupID, err)
	}

	items, err := r.decodeAll(res)
	if err != nil {
		return nil, err
	}
	sortByPriority(items)
	return items, nil
}

// Get loads one item. A missing item yields domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id int64) (*content.Item, error) {
	fields, err := r.store.HGetAll(ctx, Key(r.prefix, r.kind, id))
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", r.kind, id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s %d: %w", r.kind, id, domain.ErrNotFound)
	}
	return decode(r.kind, fields)
}

func (r *Repo) decodeAll(res *db.SearchResult) ([]*content.Item, error) {
	if res == nil {
		return nil, nil
	}
	items := make([]*content.Item, 0, len(res.Entries))
	for _, e := range res.Entries {
		it, err := decode(r.kind, e.Fields)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		items = append(items, it)
	}
	return items, nil
}

// sortByPriority makes index ordering deterministic: priority desc, id asc.
func sortByPriority(items []*content.Item) {
	slices.SortStableFunc(items, func(a, b *content.Item) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
