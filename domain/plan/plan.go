// Package plan provides subscription plan value types and pure functions.
package plan

// Plan represents a subscription tier (immutable value type).
type Plan struct {
	Name              string
	RequestsPerSecond int     // Per-identity admission limit
	MonthlyQuota      int64   // Included calls per month, 0 = unlimited
	PricePerCall      float64 // Billed per call, in Currency units
	Currency          string  // ISO 4217 code, e.g. "USD"
}

// Catalog is an immutable plan lookup built once from configuration.
// It is shared by reference between the limiter and the aggregator and is
// never mutated after construction; reloads build a fresh Catalog.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog builds a catalog from a list of plans.
// Later entries with a duplicate name win, matching config-file semantics.
func NewCatalog(plans []Plan) *Catalog {
	m := make(map[string]Plan, len(plans))
	for _, p := range plans {
		if p.Currency == "" {
			p.Currency = "USD"
		}
		m[p.Name] = p
	}
	return &Catalog{plans: m}
}

// Find returns the plan with the given name.
func (c *Catalog) Find(name string) (Plan, bool) {
	p, ok := c.plans[name]
	return p, ok
}

// Names returns all plan names (order unspecified).
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.plans))
	for name := range c.plans {
		names = append(names, name)
	}
	return names
}

// Len returns the number of plans in the catalog.
func (c *Catalog) Len() int {
	return len(c.plans)
}

// Cost prices a call count against a plan.
// This is a PURE function.
func Cost(p Plan, calls int64) float64 {
	return float64(calls) * p.PricePerCall
}

// IsUnlimited checks whether a plan has no monthly quota.
// This is a PURE function.
func IsUnlimited(p Plan) bool {
	return p.MonthlyQuota <= 0
}
