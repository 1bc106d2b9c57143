// Package groupiso selects at most one procedure group for a query and decides
// whether to return the whole group or a narrow high-scoring subset.
package groupiso

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
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

// Resolution is the resolver output. Candidates never mix groups.
type Resolution struct {
	Candidates []candidate.Candidate
	Decision   Decision
}

// Resolver runs group selection, within-group scoring and bias detection.
type Resolver struct {
	groups  GroupStore
	embed   Embedder
	boosts  IntentBooster
	tenants TenantReader
	cfg     ranking.GroupConfig
	scope   content.ScopeWeights

	embedTimeout time.Duration
	indexTimeout time.Duration
	logger       *zap.Logger
}

// New creates a resolver. boosts and tenants may be nil.
func New(
	groups GroupStore, embed Embedder, boosts IntentBooster, tenants TenantReader,
	cfg ranking.Config, logger *zap.Logger,
) *Resolver {
	return &Resolver{
		groups:       groups,
		embed:        embed,
		boosts:       boosts,
		tenants:      tenants,
		cfg:          cfg.Group,
		scope:        cfg.Scope,
		embedTimeout: 10 * time.Second,
		indexTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// WithTimeouts overrides the embedding and index call timeouts.
func (r *Resolver) WithTimeouts(embed, index time.Duration) *Resolver {
	r.embedTimeout = embed
	r.indexTimeout = index
	return r
}

// Resolve returns at most q.TopK() items from a single group.
// A rejected or missing group is an empty, non-error result; only store
// failures are returned, wrapped with domain.ErrIndexUnavailable.
func (r *Resolver) Resolve(ctx context.Context, q query.Context) (Resolution, error) {
	log := logger.FromContextOr(ctx, r.logger).With(zap.Int64("tenant_id", q.TenantID()))

	vec, err := r.embedQuery(ctx, q.Text())
	if err != nil {
		log.Warn("Query embedding failed, skipping group isolation", zap.Error(err))
		return r.finish(log, Resolution{Decision: Decision{Outcome: OutcomeEmbeddingUnavailable}}), nil
	}

	d, items, err := r.selectGroup(ctx, q, vec)
	if err != nil {
		return Resolution{}, err
	}
	if !d.Outcome.Entered() {
		return r.finish(log, Resolution{Decision: d}), nil
	}

	aud := r.audience(ctx, log, q)
	scored := r.score(ctx, q, aud, vec, items)
	cs := r.detectBias(&d, scored, q.TopK())

	return r.finish(log, Resolution{Candidates: cs, Decision: d}), nil
}

// selectGroup is stage 1. Members are loaded only when the group is entered
// or the hybrid check needs them.
func (r *Resolver) selectGroup(
	ctx context.Context, q query.Context, vec []float32,
) (Decision, []*content.Item, error) {
	ictx, cancel := withTimeout(ctx, r.indexTimeout)
	defer cancel()

	match, err := r.groups.TopGroup(ictx, vec, q.TenantID())
	if errors.Is(err, domain.ErrNotFound) {
		return Decision{Outcome: OutcomeNoGroups}, nil, nil
	}
	if err != nil {
		return Decision{}, nil, fmt.Errorf("top group: %w: %w", domain.ErrIndexUnavailable, err)
	}

	g := match.Similarity
	d := Decision{GroupID: match.Group.ID, GroupSimilarity: g, Items: match.ItemCount}
	if g <= r.cfg.HybridFloor {
		d.Outcome = OutcomeRejected
		return d, nil, nil
	}

	items, err := r.groups.ItemsIn(ictx, match.Group.ID)
	if err != nil {
		return Decision{}, nil, fmt.Errorf("group %d items: %w: %w", match.Group.ID, domain.ErrIndexUnavailable, err)
	}

	if g > r.cfg.DirectEntry {
		d.Outcome = OutcomeDirect
		return d, items, nil
	}

	var m float64
	for _, it := range items {
		if it.Active {
			m = max(m, itemSimilarity(vec, it))
		}
	}
	d.BestItemSimilarity = m
	d.Hybrid = r.cfg.HybridGroupWeight*g + r.cfg.HybridItemWeight*m
	if d.Hybrid > r.cfg.HybridEntry {
		d.Outcome = OutcomeHybrid
		return d, items, nil
	}
	d.Outcome = OutcomeRejected
	return d, nil, nil
}

// score is stage 2: every active applicable member, no similarity threshold.
func (r *Resolver) score(
	ctx context.Context, q query.Context, aud content.Audience, vec []float32, items []*content.Item,
) []candidate.Candidate {
	cs := make([]candidate.Candidate, 0, len(items))
	for _, it := range items {
		if it == nil || !it.Active || !aud.Allows(it) {
			continue
		}
		boost := ranking.NoBoost("intent boost disabled")
		if r.boosts != nil {
			boost = r.boosts.Boost(ctx, it.IntentIDs, q)
		}
		c := candidate.New(it, itemSimilarity(vec, it), boost.Multiplier, boost.Reason, candidate.MethodVector)
		c.ScopeWeight = r.scope.Weight(it, q.TenantID())
		cs = append(cs, c)
	}
	return candidate.Dedupe(cs)
}

// detectBias is stage 3. The broad-query ratio is checked before the
// high-count rule, so a small group where most items score high is always
// returned whole.
func (r *Resolver) detectBias(d *Decision, cs []candidate.Candidate, topK int) []candidate.Candidate {
	n := len(cs)
	d.Items = n
	if n == 0 {
		d.Branch = BranchEmptyGroup
		return nil
	}

	slices.SortStableFunc(cs, func(a, b candidate.Candidate) int {
		return cmp.Or(cmp.Compare(b.Boosted, a.Boosted), candidate.Compare(a, b))
	})
	d.Top1 = cs[0].Boosted
	if n > 1 {
		d.Top2 = cs[1].Boosted
	}

	var high []candidate.Candidate
	for _, c := range cs {
		if c.Boosted >= r.cfg.HighScore {
			high = append(high, c)
		}
	}
	k := len(high)
	d.HighItems = k

	out := cs
	switch {
	case n >= r.cfg.BroadMinItems && float64(k)/float64(n) > r.cfg.BroadRatio:
		d.Branch = BranchBroad
	case k >= r.cfg.BiasMinCount:
		d.Branch = BranchBiasedCount
		out = high
	case k >= 1 && r.leaderIsolated(d.Top1, d.Top2, n):
		d.Branch = BranchBiasedGap
		out = high
	default:
		d.Branch = BranchNotBiased
	}

	out = slices.Clone(out)
	candidate.Sort(out)
	return candidate.Truncate(out, topK)
}

func (r *Resolver) leaderIsolated(top1, top2 float64, n int) bool {
	if top1 < r.cfg.HighScore {
		return false
	}
	return n == 1 || top1-top2 > r.cfg.GapThreshold || top2 < r.cfg.RunnerUpCeiling
}

func (r *Resolver) finish(log *zap.Logger, res Resolution) Resolution {
	d := res.Decision
	metrics.GroupStageTotal.WithLabelValues("selection", string(d.Outcome)).Inc()
	if d.Branch != "" {
		metrics.GroupStageTotal.WithLabelValues("bias", string(d.Branch)).Inc()
	}
	log.Debug("Group isolation decision",
		zap.String("outcome", string(d.Outcome)),
		zap.Int64("group_id", d.GroupID),
		zap.Float64("group_similarity", d.GroupSimilarity),
		zap.Float64("hybrid", d.Hybrid),
		zap.String("branch", string(d.Branch)),
		zap.Int("items", d.Items),
		zap.Int("high_items", d.HighItems),
		zap.Int("returned", len(res.Candidates)),
	)
	return res
}

func (r *Resolver) audience(ctx context.Context, log *zap.Logger, q query.Context) content.Audience {
	var tenant *content.Tenant
	if r.tenants != nil {
		t, err := r.tenants.Tenant(ctx, q.TenantID())
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

func (r *Resolver) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, r.embedTimeout)
	defer cancel()

	res, err := r.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("embed query: empty vector: %w", domain.ErrEmbeddingProviderError)
	}
	return res.Embedding, nil
}

// itemSimilarity is the better of the primary and fallback embedding similarities.
func itemSimilarity(vec []float32, it *content.Item) float64 {
	return max(domain.CosineSimilarity(vec, it.Primary), domain.CosineSimilarity(vec, it.Fallback))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
