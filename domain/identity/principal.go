// Package identity provides the resolved request principal.
package identity

// Principal is a verified identity with its customer and subscription
// plan, established per request by an identity resolver. It is never
// persisted by this service.
type Principal struct {
	UserID     string
	CustomerID string
	Plan       string
}

// Key returns the identity under which rate-limit state is kept.
func (p Principal) Key() string {
	return p.UserID
}
