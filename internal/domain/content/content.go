// Package content holds the read-only records the ranking core consumes.
// Items and groups are owned by the admin layer; nothing here mutates them.
package content

import "fmt"

// Kind distinguishes the two retrievable entity families.
type Kind string

const (
	// KindKnowledge is a question/answer knowledge entry.
	KindKnowledge Kind = "knowledge"
	// KindProcedure is a step in a grouped procedure (SOP).
	KindProcedure Kind = "procedure"
)

// Scope is the ownership tier of an item.
type Scope string

const (
	// ScopeGlobal items have no owning tenant and apply everywhere.
	ScopeGlobal Scope = "global"
	// ScopeVendor items belong to one tenant.
	ScopeVendor Scope = "vendor"
	// ScopeCustomized items are tenant overrides of global content.
	ScopeCustomized Scope = "customized"
)

// ParseScope validates a scope string. Empty input maps to ScopeGlobal.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "":
		return ScopeGlobal, nil
	case ScopeGlobal, ScopeVendor, ScopeCustomized:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// Item is a single retrievable knowledge or procedure entry.
// TenantID 0 means the item is not owned by any tenant.
type Item struct {
	ID            int64
	Kind          Kind
	Scope         Scope
	TenantID      int64
	BusinessTypes []string
	UserRoles     []string
	Keywords      []string
	IntentIDs     []int64
	Primary       []float32
	Fallback      []float32
	Priority      int
	Title         string
	Content       string
	GroupID       int64
	Active        bool
}

// RerankText is the text a cross-encoder scores against the query.
func (it *Item) RerankText() string {
	if it.Content != "" {
		return it.Content
	}
	return it.Title
}

// Group is an ordered set of procedure items sharing a group-level embedding.
type Group struct {
	ID        int64
	TenantID  int64
	Name      string
	Embedding []float32
}

// Tenant is the subset of tenant metadata the applicability rules need.
type Tenant struct {
	ID            int64
	Code          string
	Name          string
	BusinessTypes []string
	Active        bool
}

// GroupMatch is the best-matching group for a query vector.
type GroupMatch struct {
	Group      Group
	Similarity float64
	// ItemCount is the number of active members in the group.
	ItemCount int
}
