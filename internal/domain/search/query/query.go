// Package query holds the validated retrieval request.
package query

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/hybridrank/internal/domain"
)

// Query limits.
const (
	MaxQueryLength = 4096 // characters
	MaxTopK        = 100
)

// Defaults are the per-source fallbacks for unset request options.
type Defaults struct {
	TopK                int
	SimilarityThreshold float64
	KeywordFallback     bool
	KeywordBoost        bool
}

// Options are the caller-controlled knobs; nil/zero values take Defaults.
type Options struct {
	TopK                int
	SimilarityThreshold *float64
	KeywordFallback     *bool
	KeywordBoost        *bool
}

// Context is a validated retrieval request.
type Context struct {
	text               string
	tenantID           int64
	primaryIntentID    int64
	secondaryIntentIDs []int64
	userRole           string
	topK               int
	threshold          float64
	keywordFallback    bool
	keywordBoost       bool
}

// New validates the request and resolves unset options against d.
func New(
	text string, tenantID, primaryIntentID int64, secondaryIntentIDs []int64,
	userRole string, opts Options, d Defaults,
) (Context, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Context{}, invalid("query is required")
	}
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return Context{}, invalid("query too long (max %d chars)", MaxQueryLength)
	}
	if tenantID <= 0 {
		return Context{}, invalid("tenant id must be positive")
	}
	if opts.TopK < 0 {
		return Context{}, invalid("top_k must not be negative")
	}

	topK := opts.TopK
	if topK == 0 {
		topK = d.TopK
	}
	if topK <= 0 {
		return Context{}, invalid("top_k must be positive")
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	threshold := d.SimilarityThreshold
	if opts.SimilarityThreshold != nil {
		threshold = *opts.SimilarityThreshold
	}
	if threshold < 0 || threshold > 1 {
		return Context{}, invalid("similarity_threshold must be between 0 and 1")
	}

	fallback := d.KeywordFallback
	if opts.KeywordFallback != nil {
		fallback = *opts.KeywordFallback
	}
	boost := d.KeywordBoost
	if opts.KeywordBoost != nil {
		boost = *opts.KeywordBoost
	}

	secondary := slices.Clone(secondaryIntentIDs)
	slices.Sort(secondary)
	secondary = slices.Compact(secondary)

	return Context{
		text:               text,
		tenantID:           tenantID,
		primaryIntentID:    primaryIntentID,
		secondaryIntentIDs: secondary,
		userRole:           userRole,
		topK:               topK,
		threshold:          threshold,
		keywordFallback:    fallback,
		keywordBoost:       boost,
	}, nil
}

// Text returns the trimmed query text.
func (c Context) Text() string { return c.text }

// TenantID returns the requesting tenant.
func (c Context) TenantID() int64 { return c.tenantID }

// PrimaryIntentID returns the classified primary intent, 0 if none.
func (c Context) PrimaryIntentID() int64 { return c.primaryIntentID }

// SecondaryIntentIDs returns the sorted, de-duplicated related intents.
func (c Context) SecondaryIntentIDs() []int64 { return c.secondaryIntentIDs }

// IsSecondaryIntent reports whether id is one of the related intents.
func (c Context) IsSecondaryIntent(id int64) bool {
	_, ok := slices.BinarySearch(c.secondaryIntentIDs, id)
	return ok
}

// UserRole returns the requesting user's role.
func (c Context) UserRole() string { return c.userRole }

// TopK returns the maximum result count.
func (c Context) TopK() int { return c.topK }

// SimilarityThreshold returns the minimum base similarity for vector hits.
func (c Context) SimilarityThreshold() float64 { return c.threshold }

// KeywordFallback reports whether the keyword index may fill an under-filled result.
func (c Context) KeywordFallback() bool { return c.keywordFallback }

// KeywordBoost reports whether keyword overlap boosts scores.
func (c Context) KeywordBoost() bool { return c.keywordBoost }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidQuery, fmt.Sprintf(format, args...))
}
