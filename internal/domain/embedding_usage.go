package domain

import (
	"context"
	"sync/atomic"
)

type usageKey struct{}

// EmbeddingUsage accumulates query embedding tokens for one HTTP request.
// Safe for concurrent use by the stages of a pipeline.
type EmbeddingUsage struct {
	tokens atomic.Int64
	calls  atomic.Int64
}

// NewContextWithUsage attaches a fresh collector to ctx.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := new(EmbeddingUsage)
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext returns the request's collector, or nil.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(usageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records one embedding call. A cache hit records zero tokens but still counts as a call.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.tokens.Add(int64(n))
	u.calls.Add(1)
}

// Tokens is the total recorded so far.
func (u *EmbeddingUsage) Tokens() int { return int(u.tokens.Load()) }

// Used reports whether any embedding call was recorded.
func (u *EmbeddingUsage) Used() bool { return u.calls.Load() > 0 }
