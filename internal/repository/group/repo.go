// Package group reads procedure groups and scores them against a query vector in-process.
package group

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/kailas-cloud/hybridrank/internal/cache"
	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
)

// Hash fields of a group record.
const (
	fieldID        = "id"
	fieldTenant    = "tenant"
	fieldName      = "name"
	fieldEmbedding = "embedding"
	fieldItemCount = "item_count"
	fieldActive    = "active"
)

type store interface {
	Scan(ctx context.Context, pattern string) ([]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// MemberLister lists a group's items in step order.
type MemberLister interface {
	ByGroup(ctx context.Context, groupID int64) ([]*content.Item, error)
}

type record struct {
	group     content.Group
	itemCount int
}

// Repo implements the group store used by group isolation.
// Each tenant's groups are loaded once and kept until invalidated.
type Repo struct {
	store   store
	members MemberLister
	prefix  string
	groups  *cache.Cache[int64, []record]

	mu       sync.Mutex
	tenantOf map[int64]int64
}

// New creates a group repository.
func New(s store, members MemberLister, prefix string) *Repo {
	r := &Repo{
		store:    s,
		members:  members,
		prefix:   prefix,
		tenantOf: make(map[int64]int64),
	}
	r.groups = cache.New("group", r.load)
	return r
}

// TopGroup returns the tenant's active group whose embedding is most similar to vector.
// Equal similarities resolve to the lower group id.
func (r *Repo) TopGroup(ctx context.Context, vector []float32, tenantID int64) (content.GroupMatch, error) {
	recs, err := r.groups.Get(ctx, tenantID)
	if err != nil {
		return content.GroupMatch{}, err
	}

	var (
		best  content.GroupMatch
		found bool
	)
	for _, rec := range recs {
		sim := domain.CosineSimilarity(vector, rec.group.Embedding)
		if !found || sim > best.Similarity {
			best = content.GroupMatch{Group: rec.group, Similarity: sim, ItemCount: rec.itemCount}
			found = true
		}
	}
	if !found {
		return content.GroupMatch{}, fmt.Errorf("groups of tenant %d: %w", tenantID, domain.ErrNotFound)
	}
	return best, nil
}

// ItemsIn returns every member of groupID.
func (r *Repo) ItemsIn(ctx context.Context, groupID int64) ([]*content.Item, error) {
	return r.members.ByGroup(ctx, groupID)
}

// InvalidateTenant drops the cached groups of one tenant.
func (r *Repo) InvalidateTenant(tenantID int64) {
	r.groups.Invalidate(tenantID)
}

// InvalidateGroup drops the cached groups of the tenant owning groupID.
// An unknown group clears every tenant.
func (r *Repo) InvalidateGroup(groupID int64) {
	r.mu.Lock()
	tenantID, ok := r.tenantOf[groupID]
	r.mu.Unlock()

	if !ok {
		r.Clear()
		return
	}
	r.groups.Invalidate(tenantID)
}

// Clear drops every cached group.
func (r *Repo) Clear() {
	r.groups.Clear()
	r.mu.Lock()
	r.tenantOf = make(map[int64]int64)
	r.mu.Unlock()
}

func (r *Repo) load(ctx context.Context, tenantID int64) ([]record, error) {
	keys, err := r.store.Scan(ctx, fmt.Sprintf("%sgroup:%d:*", r.prefix, tenantID))
	if err != nil {
		return nil, fmt.Errorf("scan groups: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read groups: %w", err)
	}

	recs := make([]record, 0, len(hashes))
	for i, h := range hashes {
		if len(h) == 0 || h[fieldActive] == content.TagFalse {
			continue
		}
		rec, err := decode(h)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, func(a, b record) int { return cmp.Compare(a.group.ID, b.group.ID) })

	r.mu.Lock()
	for _, rec := range recs {
		r.tenantOf[rec.group.ID] = tenantID
	}
	r.mu.Unlock()

	return recs, nil
}

func decode(h map[string]string) (record, error) {
	id, err := strconv.ParseInt(h[fieldID], 10, 64)
	if err != nil {
		return record{}, fmt.Errorf("id %q: %w", h[fieldID], err)
	}

	rec := record{group: content.Group{ID: id, Name: h[fieldName]}}

	if t := h[fieldTenant]; t != "" {
		if rec.group.TenantID, err = strconv.ParseInt(t, 10, 64); err != nil {
			return record{}, fmt.Errorf("tenant %q: %w", t, err)
		}
	}
	if n := strings.TrimSpace(h[fieldItemCount]); n != "" {
		if rec.itemCount, err = strconv.Atoi(n); err != nil {
			return record{}, fmt.Errorf("item_count %q: %w", n, err)
		}
	}

	blob := h[fieldEmbedding]
	if len(blob)%4 != 0 {
		return record{}, fmt.Errorf("embedding blob of %d bytes", len(blob))
	}
	rec.group.Embedding = make([]float32, len(blob)/4)
	for i := range rec.group.Embedding {
		rec.group.Embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(blob[i*4 : i*4+4])))
	}

	return rec, nil
}
