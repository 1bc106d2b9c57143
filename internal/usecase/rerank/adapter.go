// Package rerank blends relevance model scores into a ranked candidate list.
package rerank

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/candidate"
	"github.com/kailas-cloud/hybridrank/internal/logger"
	"github.com/kailas-cloud/hybridrank/internal/metrics"
)

// DefaultTimeout bounds one scoring call.
const DefaultTimeout = 15 * time.Second

// Adapter reranks candidates of one source with a RerankScorer.
// Raw model scores in [-1,1] are mapped to [0,1] before blending.
type Adapter struct {
	source  string
	scorer  domain.RerankScorer
	cfg     ranking.RerankConfig
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an adapter; source labels logs and metrics.
func New(source string, scorer domain.RerankScorer, cfg ranking.RerankConfig, logger *zap.Logger) *Adapter {
	return &Adapter{
		source:  source,
		scorer:  scorer,
		cfg:     cfg,
		timeout: DefaultTimeout,
		logger:  logger,
	}
}

// WithTimeout overrides the scoring timeout.
func (a *Adapter) WithTimeout(d time.Duration) *Adapter {
	a.timeout = d
	return a
}

// Rerank scores the first MaxCandidatesFactor×topK candidates in one batch and
// re-sorts them by the blended score. The rest keep their order after them.
// On any failure cs is returned as is.
func (a *Adapter) Rerank(ctx context.Context, queryText string, cs []candidate.Candidate, topK int) []candidate.Candidate {
	if len(cs) == 0 {
		metrics.RerankTotal.WithLabelValues(a.source, "skipped").Inc()
		return cs
	}

	n := len(cs)
	if limit := a.cfg.MaxCandidatesFactor * topK; limit > 0 && limit < n {
		n = limit
	}

	raw, err := a.score(ctx, queryText, cs[:n])
	if err != nil {
		metrics.RerankTotal.WithLabelValues(a.source, "failed").Inc()
		logger.FromContextOr(ctx, a.logger).Warn("Rerank failed, keeping original order",
			zap.String("source", a.source),
			zap.Int("candidates", n),
			zap.Error(err),
		)
		return cs
	}

	head := slices.Clone(cs[:n])
	for i := range head {
		c := &head[i]
		orig := c.Score
		norm := Normalize(raw[c.ID()])
		c.OriginalScore = &orig
		c.RerankScore = &norm
		c.Score = a.cfg.Blend(orig, norm)
	}
	candidate.Sort(head)

	metrics.RerankTotal.WithLabelValues(a.source, "applied").Inc()
	return append(head, cs[n:]...)
}

func (a *Adapter) score(ctx context.Context, queryText string, cs []candidate.Candidate) (map[int64]float64, error) {
	docs := make([]domain.RerankDocument, len(cs))
	for i := range cs {
		docs[i] = domain.RerankDocument{ID: cs[i].ID(), Text: cs[i].Item.RerankText()}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := a.scorer.Score(ctx, queryText, docs)
	metrics.RerankDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("score %d candidates: %w", len(docs), err)
	}

	for _, d := range docs {
		if _, ok := raw[d.ID]; !ok {
			return nil, fmt.Errorf("no score for item %d: %w", d.ID, domain.ErrRerankerUnavailable)
		}
	}
	return raw, nil
}

// Normalize maps a raw score in [-1,1] to [0,1], clamping out-of-range values.
func Normalize(raw float64) float64 {
	return domain.Clamp01((raw + 1) / 2)
}
