// Package embcache memoizes query embeddings in the key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/db"
	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/logger"
	"github.com/kailas-cloud/hybridrank/internal/metrics"
)

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options scope cache keys and bound entry lifetime.
type Options struct {
	// Prefix is the deployment key prefix, e.g. "hybridrank:".
	Prefix string
	// Model is part of the key so a model switch never serves stale vectors.
	Model string
	// TTL of 0 keeps entries until evicted by the server.
	TTL time.Duration
}

// CachedEmbedder is a read-through embedding cache. Store failures are
// logged and bypassed; only the inner embedder's errors are returned.
type CachedEmbedder struct {
	inner  domain.Embedder
	store  store
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps inner with a cache in s.
func New(inner domain.Embedder, s store, opts Options, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		store:  s,
		prefix: fmt.Sprintf("%semb:%s:", opts.Prefix, opts.Model),
		ttl:    opts.TTL,
		logger: logger,
	}
}

// Embed returns the cached vector with zero token usage, or embeds and caches.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)
	log := logger.FromContextOr(ctx, c.logger)

	if vec, ok := c.lookup(ctx, log, key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	if len(res.Embedding) > 0 {
		c.put(ctx, log, key, res.Embedding)
	}
	return res, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (c *CachedEmbedder) key(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, log *zap.Logger, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return nil, false
	case err != nil:
		log.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	vec, err := decode(data)
	if err != nil {
		log.Warn("Embedding cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) put(ctx context.Context, log *zap.Logger, key string, vec []float32) {
	data := encode(vec)
	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, data, c.ttl)
	} else {
		err = c.store.Set(ctx, key, data)
	}
	if err != nil {
		log.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decode(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector encoding: %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
