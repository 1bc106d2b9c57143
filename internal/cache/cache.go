// Package cache provides explicit read-through caches for slowly changing
// metadata (tenant profiles, intent and group embeddings). Entries never
// expire; they are dropped only through Invalidate or Clear.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/hybridrank/internal/metrics"
)

// DefaultLoadTimeout bounds a shared load once it is detached from callers.
const DefaultLoadTimeout = 5 * time.Second

// Loader fetches the value for key on a miss.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache is a concurrency-safe read-through cache.
// Concurrent misses for the same key share one load. Load errors are not cached.
type Cache[K comparable, V any] struct {
	name        string
	load        Loader[K, V]
	loadTimeout time.Duration
	flight      singleflight.Group

	mu      sync.RWMutex
	entries map[K]V
	gen     map[K]uint64
	epoch   uint64
}

// New creates a cache; name labels its metrics.
func New[K comparable, V any](name string, load Loader[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		name:        name,
		load:        load,
		loadTimeout: DefaultLoadTimeout,
		entries:     make(map[K]V),
		gen:         make(map[K]uint64),
	}
}

// WithLoadTimeout sets the bound on a shared load. Non-positive values are ignored.
func (c *Cache[K, V]) WithLoadTimeout(d time.Duration) *Cache[K, V] {
	if d > 0 {
		c.loadTimeout = d
	}
	return c
}

// Get returns the cached value for key, loading it on a miss.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		metrics.MetadataCacheTotal.WithLabelValues(c.name, "hit").Inc()
		return v, nil
	}

	metrics.MetadataCacheTotal.WithLabelValues(c.name, "miss").Inc()

	// The shared load ignores the starting caller's cancellation and is bounded
	// by loadTimeout. Each waiter returns on its own ctx.
	ch := c.flight.DoChan(c.flightKey(key), func() (any, error) {
		stamp := c.stamp(key)
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		loaded, err := c.load(loadCtx, key)
		if err != nil {
			return loaded, err
		}
		c.store(key, loaded, stamp)
		return loaded, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	if res.Err != nil {
		metrics.MetadataCacheTotal.WithLabelValues(c.name, "error").Inc()
		var zero V
		return zero, fmt.Errorf("load %s %v: %w", c.name, key, res.Err)
	}
	return res.Val.(V), nil
}

// Invalidate drops key. A load in flight for key will not repopulate it.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gen[key]++
	c.mu.Unlock()
	c.flight.Forget(c.flightKey(key))
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.entries = make(map[K]V)
	c.gen = make(map[K]uint64)
	c.epoch++
	c.mu.Unlock()

	for _, k := range keys {
		c.flight.Forget(c.flightKey(k))
	}
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Name returns the metrics label of the cache.
func (c *Cache[K, V]) Name() string { return c.name }

type stamp struct {
	epoch uint64
	gen   uint64
}

func (c *Cache[K, V]) stamp(key K) stamp {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return stamp{epoch: c.epoch, gen: c.gen[key]}
}

// store keeps v only if nothing invalidated key since the load started.
func (c *Cache[K, V]) store(key K, v V, s stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != s.epoch || c.gen[key] != s.gen {
		return
	}
	c.entries[key] = v
}

func (c *Cache[K, V]) flightKey(key K) string {
	return fmt.Sprint(key)
}
