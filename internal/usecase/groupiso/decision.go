package groupiso

// Outcome is the result of group selection.
type Outcome string

const (
	OutcomeDirect               Outcome = "entered_direct"
	OutcomeHybrid               Outcome = "entered_hybrid"
	OutcomeRejected             Outcome = "rejected"
	OutcomeNoGroups             Outcome = "no_groups"
	OutcomeEmbeddingUnavailable Outcome = "embedding_unavailable"
)

// Entered reports whether a group was selected.
func (o Outcome) Entered() bool {
	return o == OutcomeDirect || o == OutcomeHybrid
}

// Branch is the bias detection branch taken inside a selected group.
type Branch string

const (
	// BranchBroad: most of the group scores high, the query is general.
	BranchBroad Branch = "broad_query"
	// BranchBiasedCount: enough items score high to return only those.
	BranchBiasedCount Branch = "biased_count"
	// BranchBiasedGap: one or two items clearly lead the rest.
	BranchBiasedGap Branch = "biased_gap"
	// BranchNotBiased: no narrow subset stands out.
	BranchNotBiased Branch = "not_biased"
	// BranchEmptyGroup: the group has no applicable active items.
	BranchEmptyGroup Branch = "empty_group"
)

// Decision records how the resolver arrived at its result.
type Decision struct {
	Outcome         Outcome `json:"outcome"`
	GroupID         int64   `json:"group_id,omitempty"`
	GroupSimilarity float64 `json:"group_similarity"`
	// BestItemSimilarity and Hybrid are set only when the hybrid check ran.
	BestItemSimilarity float64 `json:"best_item_similarity,omitempty"`
	Hybrid             float64 `json:"hybrid_score,omitempty"`

	Branch    Branch  `json:"branch,omitempty"`
	Items     int     `json:"items"`
	HighItems int     `json:"high_items"`
	Top1      float64 `json:"top1,omitempty"`
	Top2      float64 `json:"top2,omitempty"`
}
