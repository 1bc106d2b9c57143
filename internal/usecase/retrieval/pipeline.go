// Package retrieval implements the shared hybrid ranking pipeline:
// vector search, keyword fallback, keyword boost and reranking over any Source.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/candidate"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/query"
	"github.com/kailas-cloud/hybridrank/internal/logger"
	"github.com/kailas-cloud/hybridrank/internal/metrics"
)

// Timeouts bound the network calls on the critical path. Zero disables a bound.
type Timeouts struct {
	Embedding time.Duration
	Index     time.Duration
}

// DefaultTimeouts are applied when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{Embedding: 10 * time.Second, Index: 5 * time.Second}
}

// Pipeline ranks one Source. It holds no per-request state and is safe for concurrent use.
type Pipeline[T any] struct {
	source   Source[T]
	embed    Embedder
	tokens   Tokenizer
	boosts   IntentBooster
	tenants  TenantReader
	rerank   Reranker
	cfg      ranking.Config
	timeouts Timeouts
	logger   *zap.Logger
}

// New creates a pipeline over source. boosts and tenants may be nil.
func New[T any](
	source Source[T], embed Embedder, tokens Tokenizer,
	boosts IntentBooster, tenants TenantReader,
	cfg ranking.Config, logger *zap.Logger,
) *Pipeline[T] {
	return &Pipeline[T]{
		source:   source,
		embed:    embed,
		tokens:   tokens,
		boosts:   boosts,
		tenants:  tenants,
		cfg:      cfg,
		timeouts: DefaultTimeouts(),
		logger:   logger,
	}
}

// WithReranker enables the rerank stage.
func (p *Pipeline[T]) WithReranker(r Reranker) *Pipeline[T] {
	p.rerank = r
	return p
}

// WithTimeouts overrides the call timeouts.
func (p *Pipeline[T]) WithTimeouts(t Timeouts) *Pipeline[T] {
	p.timeouts = t
	return p
}

// Retrieve ranks and formats results for q.
func (p *Pipeline[T]) Retrieve(ctx context.Context, q query.Context) ([]T, error) {
	cs, err := p.Rank(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(cs))
	for i := range cs {
		out[i] = p.source.Format(cs[i])
	}
	return out, nil
}

// Rank returns at most q.TopK() candidates in strict order.
// Embedding and reranker failures degrade the result; only index failures
// are returned, wrapped with domain.ErrIndexUnavailable.
func (p *Pipeline[T]) Rank(ctx context.Context, q query.Context) ([]candidate.Candidate, error) {
	start := time.Now()
	name := p.source.Name()
	log := logger.FromContextOr(ctx, p.logger).With(
		zap.String("source", name),
		zap.Int64("tenant_id", q.TenantID()),
	)

	cs, degraded, err := p.rank(ctx, log, q)

	metrics.RetrievalDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	metrics.RetrievalRequestsTotal.WithLabelValues(name, outcome(cs, degraded, err)).Inc()
	if err != nil {
		return nil, err
	}
	metrics.RetrievalResults.WithLabelValues(name).Observe(float64(len(cs)))
	return cs, nil
}

func (p *Pipeline[T]) rank(
	ctx context.Context, log *zap.Logger, q query.Context,
) ([]candidate.Candidate, bool, error) {
	aud := p.audience(ctx, log, q)

	vec, err := p.embedQuery(ctx, q.Text())
	if err != nil {
		log.Warn("Query embedding failed", zap.Bool("keyword_fallback", q.KeywordFallback()), zap.Error(err))
		if !q.KeywordFallback() {
			return nil, true, nil
		}
		metrics.KeywordFallbackTotal.WithLabelValues(p.source.Name(), "embedding_failed").Inc()
		cs, err := p.keywordSearch(ctx, q, aud, q.TopK(), nil)
		return cs, true, err
	}

	cs, err := p.vectorSearch(ctx, q, aud, vec)
	if err != nil {
		return nil, false, err
	}

	if q.KeywordFallback() && len(cs) < q.TopK() {
		metrics.KeywordFallbackTotal.WithLabelValues(p.source.Name(), "insufficient_results").Inc()
		exclude := make(map[int64]struct{}, len(cs))
		for i := range cs {
			exclude[cs[i].ID()] = struct{}{}
		}
		extra, err := p.keywordSearch(ctx, q, aud, q.TopK()-len(cs), exclude)
		if err != nil {
			return nil, false, err
		}
		cs = candidate.Dedupe(append(cs, extra...))
		log.Debug("Keyword fallback filled results", zap.Int("added", len(extra)))
	}

	if q.KeywordBoost() && len(cs) > 0 {
		p.applyKeywordBoost(q, cs)
	}

	candidate.Sort(cs)

	if p.rerank != nil && len(cs) > 0 {
		cs = p.rerank.Rerank(ctx, q.Text(), cs, q.TopK())
	}

	return candidate.Truncate(cs, q.TopK()), false, nil
}

// audience resolves applicability; tenant metadata failures degrade to no business types.
func (p *Pipeline[T]) audience(ctx context.Context, log *zap.Logger, q query.Context) content.Audience {
	var tenant *content.Tenant
	if p.tenants != nil {
		t, err := p.tenants.Tenant(ctx, q.TenantID())
		switch {
		case err == nil:
			tenant = t
		case errors.Is(err, domain.ErrNotFound):
			log.Debug("Tenant metadata not found")
		default:
			log.Warn("Tenant metadata unavailable", zap.Error(err))
		}
	}
	return content.ResolveAudience(q.TenantID(), tenant, q.UserRole())
}

func (p *Pipeline[T]) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, p.timeouts.Embedding)
	defer cancel()

	res, err := p.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("embed query: empty vector: %w", domain.ErrEmbeddingProviderError)
	}
	return res.Embedding, nil
}

func (p *Pipeline[T]) vectorSearch(
	ctx context.Context, q query.Context, aud content.Audience, vec []float32,
) ([]candidate.Candidate, error) {
	ictx, cancel := withTimeout(ctx, p.timeouts.Index)
	hits, err := p.source.VectorSearch(ictx, vec, aud, q.SimilarityThreshold(), q.TopK())
	cancel()
	if err != nil {
		return nil, fmt.Errorf("vector search %s: %w: %w", p.source.Name(), domain.ErrIndexUnavailable, err)
	}

	cs := make([]candidate.Candidate, 0, len(hits))
	for _, h := range hits {
		if h.Item == nil || h.Similarity < q.SimilarityThreshold() || !aud.Allows(h.Item) {
			continue
		}
		boost := p.intentBoost(ctx, h.Item, q)
		c := candidate.New(h.Item, h.Similarity, boost.Multiplier, boost.Reason, candidate.MethodVector)
		c.ScopeWeight = p.cfg.Scope.Weight(h.Item, q.TenantID())
		cs = append(cs, c)
	}

	candidate.Sort(cs)
	return candidate.Truncate(candidate.Dedupe(cs), q.TopK()), nil
}

// keywordSearch scores keyword candidates by declared-keyword overlap with the query.
// Results carry intent boost 1.0.
func (p *Pipeline[T]) keywordSearch(
	ctx context.Context, q query.Context, aud content.Audience, limit int, exclude map[int64]struct{},
) ([]candidate.Candidate, error) {
	qTokens := newTokenSet(p.tokens, q.Text())
	if limit <= 0 || len(qTokens) == 0 {
		return nil, nil
	}

	fetch := (limit + len(exclude)) * p.cfg.Keyword.CandidateWindow
	ictx, cancel := withTimeout(ctx, p.timeouts.Index)
	items, err := p.source.KeywordCandidates(ictx, aud, fetch)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("keyword search %s: %w: %w", p.source.Name(), domain.ErrIndexUnavailable, err)
	}

	seen := make(map[int64]struct{}, len(items))
	var cs []candidate.Candidate
	for _, it := range items {
		if it == nil || !aud.Allows(it) {
			continue
		}
		if _, ok := exclude[it.ID]; ok {
			continue
		}
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}

		m := matchKeywords(p.tokens, qTokens, it.Keywords)
		if len(m.matched) == 0 {
			continue
		}
		c := candidate.New(it, m.ratio, 1, "keyword match", candidate.MethodKeywordFallback)
		c.MatchedKeywords = m.matched
		c.ScopeWeight = p.cfg.Scope.Weight(it, q.TenantID())
		cs = append(cs, c)
	}

	candidate.Sort(cs)
	return candidate.Truncate(cs, limit), nil
}

func (p *Pipeline[T]) applyKeywordBoost(q query.Context, cs []candidate.Candidate) {
	qTokens := newTokenSet(p.tokens, q.Text())
	for i := range cs {
		c := &cs[i]
		m := matchKeywords(p.tokens, qTokens, c.Item.Keywords)
		boost := p.cfg.Keyword.KeywordBoost(len(m.matched))
		if boost <= 0 {
			continue
		}
		c.KeywordBoost = boost
		c.MatchedKeywords = m.matched
		c.Score = boostScore(c.Score, boost)
	}
}

func (p *Pipeline[T]) intentBoost(ctx context.Context, it *content.Item, q query.Context) ranking.IntentBoost {
	if p.boosts == nil {
		return ranking.NoBoost("intent boost disabled")
	}
	return p.boosts.Boost(ctx, it.IntentIDs, q)
}

func outcome(cs []candidate.Candidate, degraded bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case degraded:
		return "degraded"
	case len(cs) == 0:
		return "empty"
	default:
		return "ok"
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
