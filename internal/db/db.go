// Package db defines the storage contracts the retrieval engine reads through.
// Items, groups, tenants and intents live in Redis hashes; items are
// additionally covered by FT indexes for vector and keyword candidate queries.
package db

import (
	"context"
	"time"
)

// Store is everything the composition root needs from one backend.
// Repositories depend on the narrow interfaces below.
//
//nolint:interfacebloat // composition root only
type Store interface {
	Pinger
	HashReader
	KVStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashReader reads metadata hashes. A missing hash reads as an empty map.
type HashReader interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore backs the query embedding cache.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IndexManager creates item indexes at startup.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher runs candidate queries over item indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchList(ctx context.Context, q *ListQuery) (*SearchResult, error)
}
