package content

import "slices"

// Role-related constants used by the applicability rules.
const (
	RoleAllUsers        = "all_users"
	RoleTenant          = "tenant"
	RoleLandlord        = "landlord"
	RolePropertyManager = "property_manager"
	RoleSystemAdmin     = "system_admin"

	// BusinessTypeSystemProvider is the only business type visible to B2B roles.
	BusinessTypeSystemProvider = "system_provider"
)

// IsKnownRole reports whether role is one of the roles items may target directly.
func IsKnownRole(role string) bool {
	switch role {
	case RoleTenant, RoleLandlord, RolePropertyManager, RoleSystemAdmin:
		return true
	default:
		return false
	}
}

// IsB2BRole reports whether role is served from the system provider's content.
func IsB2BRole(role string) bool {
	return role == RolePropertyManager || role == RoleSystemAdmin
}

// Audience is the resolved applicability filter for one request.
type Audience struct {
	TenantID int64
	// BusinessTypes an item must overlap with (when it declares any).
	BusinessTypes []string
	// RequireBusinessType disallows items without declared business types.
	RequireBusinessType bool
	// Roles an item must overlap with (when it declares any).
	Roles []string
}

// ResolveAudience derives the applicability filter for a request.
// tenant may be nil when metadata is unavailable.
func ResolveAudience(tenantID int64, tenant *Tenant, role string) Audience {
	a := Audience{TenantID: tenantID}

	if IsB2BRole(role) {
		a.BusinessTypes = []string{BusinessTypeSystemProvider}
		a.RequireBusinessType = true
	} else if tenant != nil {
		a.BusinessTypes = slices.Clone(tenant.BusinessTypes)
	}

	if IsKnownRole(role) {
		a.Roles = []string{RoleAllUsers, role}
	} else {
		a.Roles = []string{RoleAllUsers}
	}

	return a
}

// Allows reports whether it is visible to this audience.
// An item with no declared business types or roles applies universally
// along that dimension, except that B2B audiences require a business type.
func (a Audience) Allows(it *Item) bool {
	if it.TenantID != 0 && it.TenantID != a.TenantID {
		return false
	}

	if len(it.BusinessTypes) == 0 {
		if a.RequireBusinessType {
			return false
		}
	} else if !overlaps(it.BusinessTypes, a.BusinessTypes) {
		return false
	}

	if len(it.UserRoles) > 0 && !overlaps(it.UserRoles, a.Roles) {
		return false
	}

	return true
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}
