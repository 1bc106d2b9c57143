// Package tenant loads the tenant metadata applicability rules depend on.
package tenant

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/hybridrank/internal/cache"
	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
)

type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Repo reads tenant hashes at {prefix}tenant:{id}.
type Repo struct {
	store  store
	prefix string
}

// New creates a tenant repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Load reads one tenant. A missing tenant yields domain.ErrNotFound.
func (r *Repo) Load(ctx context.Context, tenantID int64) (*content.Tenant, error) {
	h, err := r.store.HGetAll(ctx, r.prefix+"tenant:"+strconv.FormatInt(tenantID, 10))
	if err != nil {
		return nil, fmt.Errorf("get tenant %d: %w", tenantID, err)
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("tenant %d: %w", tenantID, domain.ErrNotFound)
	}

	t := &content.Tenant{
		ID:     tenantID,
		Code:   h["code"],
		Name:   h["name"],
		Active: h["active"] != content.TagFalse,
	}
	for _, bt := range strings.Split(h["business_types"], ",") {
		if bt = strings.TrimSpace(bt); bt != "" {
			t.BusinessTypes = append(t.BusinessTypes, bt)
		}
	}
	return t, nil
}

// Cached is a read-through tenant cache in front of a Repo.
type Cached struct {
	c *cache.Cache[int64, *content.Tenant]
}

// NewCached wraps repo with an explicit cache.
func NewCached(repo *Repo) *Cached {
	return &Cached{c: cache.New("tenant", repo.Load)}
}

// Tenant returns the cached tenant, loading it on a miss. Misses are not cached.
func (c *Cached) Tenant(ctx context.Context, tenantID int64) (*content.Tenant, error) {
	return c.c.Get(ctx, tenantID)
}

// Invalidate drops one tenant.
func (c *Cached) Invalidate(tenantID int64) { c.c.Invalidate(tenantID) }

// Clear drops every tenant.
func (c *Cached) Clear() { c.c.Clear() }
