// Package source binds item indexes to the retrieval pipeline and renders
// ranked candidates as API results.
package source

import (
	"context"

	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/candidate"
)

// Index is an item index of one content kind (Redis or Qdrant).
type Index interface {
	VectorSearch(
		ctx context.Context, vector []float32, aud content.Audience, threshold float64, limit int,
	) ([]candidate.Hit, error)
	KeywordCandidates(ctx context.Context, aud content.Audience, limit int) ([]*content.Item, error)
}

// Debug carries the scoring trail of one result.
type Debug struct {
	SearchMethod    candidate.SearchMethod `json:"search_method"`
	BaseSimilarity  float64                `json:"base_similarity"`
	IntentBoost     float64                `json:"intent_boost"`
	IntentReason    string                 `json:"intent_reason"`
	Boosted         float64                `json:"boosted_similarity"`
	KeywordBoost    float64                `json:"keyword_boost,omitempty"`
	MatchedKeywords []string               `json:"matched_keywords,omitempty"`
	OriginalScore   *float64               `json:"original_score,omitempty"`
	RerankScore     *float64               `json:"rerank_score,omitempty"`
	ScopeWeight     int                    `json:"scope_weight"`
}

func debugOf(c candidate.Candidate) *Debug {
	return &Debug{
		SearchMethod:    c.Method,
		BaseSimilarity:  c.Base,
		IntentBoost:     c.IntentBoost,
		IntentReason:    c.IntentReason,
		Boosted:         c.Boosted,
		KeywordBoost:    c.KeywordBoost,
		MatchedKeywords: c.MatchedKeywords,
		OriginalScore:   c.OriginalScore,
		RerankScore:     c.RerankScore,
		ScopeWeight:     c.ScopeWeight,
	}
}

// Knowledge serves question/answer entries.
type Knowledge struct {
	index Index
}

// NewKnowledge creates the knowledge source.
func NewKnowledge(index Index) *Knowledge { return &Knowledge{index: index} }

// KnowledgeResult is one ranked knowledge entry.
type KnowledgeResult struct {
	ID         int64         `json:"id"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	Scope      content.Scope `json:"scope"`
	Priority   int           `json:"priority"`
	Similarity float64       `json:"similarity"`
	Debug      *Debug        `json:"debug,omitempty"`
}

// Name implements retrieval.Source.
func (k *Knowledge) Name() string { return string(content.KindKnowledge) }

// VectorSearch implements retrieval.Source.
func (k *Knowledge) VectorSearch(
	ctx context.Context, vector []float32, aud content.Audience, threshold float64, limit int,
) ([]candidate.Hit, error) {
	return k.index.VectorSearch(ctx, vector, aud, threshold, limit)
}

// KeywordCandidates implements retrieval.Source.
func (k *Knowledge) KeywordCandidates(ctx context.Context, aud content.Audience, limit int) ([]*content.Item, error) {
	return k.index.KeywordCandidates(ctx, aud, limit)
}

// Format implements retrieval.Source.
func (k *Knowledge) Format(c candidate.Candidate) KnowledgeResult {
	return KnowledgeResult{
		ID:         c.Item.ID,
		Question:   c.Item.Title,
		Answer:     c.Item.Content,
		Scope:      c.Item.Scope,
		Priority:   c.Item.Priority,
		Similarity: c.Score,
		Debug:      debugOf(c),
	}
}

// Procedure serves procedure steps.
type Procedure struct {
	index Index
}

// NewProcedure creates the procedure source.
func NewProcedure(index Index) *Procedure { return &Procedure{index: index} }

// ProcedureResult is one ranked procedure step.
type ProcedureResult struct {
	ID         int64         `json:"id"`
	GroupID    int64         `json:"group_id,omitempty"`
	Title      string        `json:"title"`
	Content    string        `json:"content"`
	Scope      content.Scope `json:"scope"`
	Priority   int           `json:"priority"`
	Similarity float64       `json:"similarity"`
	Debug      *Debug        `json:"debug,omitempty"`
}

// Name implements retrieval.Source.
func (p *Procedure) Name() string { return string(content.KindProcedure) }

// VectorSearch implements retrieval.Source.
func (p *Procedure) VectorSearch(
	ctx context.Context, vector []float32, aud content.Audience, threshold float64, limit int,
) ([]candidate.Hit, error) {
	return p.index.VectorSearch(ctx, vector, aud, threshold, limit)
}

// KeywordCandidates implements retrieval.Source.
func (p *Procedure) KeywordCandidates(ctx context.Context, aud content.Audience, limit int) ([]*content.Item, error) {
	return p.index.KeywordCandidates(ctx, aud, limit)
}

// Format implements retrieval.Source. Group isolation results render the same way.
func (p *Procedure) Format(c candidate.Candidate) ProcedureResult {
	return ProcedureResult{
		ID:         c.Item.ID,
		GroupID:    c.Item.GroupID,
		Title:      c.Item.Title,
		Content:    c.Item.Content,
		Scope:      c.Item.Scope,
		Priority:   c.Item.Priority,
		Similarity: c.Score,
		Debug:      debugOf(c),
	}
}
