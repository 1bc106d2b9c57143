package content

// ScopeWeights maps each scope tier to its ordering weight.
type ScopeWeights struct {
	Customized int
	Vendor     int
	Global     int
}

// DefaultScopeWeights ranks customized > vendor > global.
func DefaultScopeWeights() ScopeWeights {
	return ScopeWeights{Customized: 1000, Vendor: 500, Global: 100}
}

// Weight returns the ordering weight of it as seen by tenantID.
// Tenant tiers only count when the item is owned by the requesting tenant,
// and the global tier only when the item has no owner; anything else weighs 0.
func (w ScopeWeights) Weight(it *Item, tenantID int64) int {
	switch {
	case it.Scope == ScopeCustomized && it.TenantID == tenantID && tenantID != 0:
		return w.Customized
	case it.Scope == ScopeVendor && it.TenantID == tenantID && tenantID != 0:
		return w.Vendor
	case it.Scope == ScopeGlobal && it.TenantID == 0:
		return w.Global
	default:
		return 0
	}
}
