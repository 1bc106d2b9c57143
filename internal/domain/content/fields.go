package content

import (
	"strconv"

	"github.com/kailas-cloud/hybridrank/internal/domain/search/filter"
)

// Indexed attribute names shared by every index backend.
const (
	FieldID            = "id"
	FieldKind          = "kind"
	FieldScope         = "scope"
	FieldTenant        = "tenant"
	FieldBusinessTypes = "business_types"
	FieldRoles         = "roles"
	FieldKeywords      = "keywords"
	FieldHasKeywords   = "has_keywords"
	FieldIntents       = "intents"
	FieldGroup         = "group"
	FieldActive        = "active"
	FieldPriority      = "priority"
	FieldTitle         = "title"
	FieldContent       = "content"
	FieldPrimary       = "primary"
	FieldFallback      = "fallback"
)

// Tag sentinels stored in place of empty or absent values so tag filters can match them.
const (
	// TagAny marks an item that declares no business types or no roles.
	TagAny = "__any"
	// TagGlobal marks an item without an owning tenant.
	TagGlobal = "__global"
	// TagTrue and TagFalse encode boolean tags.
	TagTrue  = "1"
	TagFalse = "0"
)

// TenantTag is the tenant tag value stored for an owner id (0 → TagGlobal).
func TenantTag(tenantID int64) string {
	if tenantID == 0 {
		return TagGlobal
	}
	return strconv.FormatInt(tenantID, 10)
}

// Filter translates the audience into an index pre-filter over active items.
// ownedOnly restricts results to the requesting tenant's own items; otherwise
// unowned (global) items are included.
func (a Audience) Filter(ownedOnly bool) filter.Expression {
	tenants := []string{TenantTag(a.TenantID)}
	if !ownedOnly {
		tenants = append([]string{TagGlobal}, tenants...)
	}

	businessTypes := a.BusinessTypes
	if !a.RequireBusinessType {
		businessTypes = append([]string{TagAny}, businessTypes...)
	}

	must := []filter.Condition{
		filter.MustMatchAny(FieldActive, TagTrue),
		filter.MustMatchAny(FieldTenant, tenants...),
		filter.MustMatchAny(FieldRoles, append([]string{TagAny}, a.Roles...)...),
		filter.MustMatchAny(FieldBusinessTypes, businessTypes...),
	}

	expr, _ := filter.NewExpression(must, nil) // fixed size, under MaxConditions
	return expr
}
