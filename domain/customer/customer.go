// Package customer provides the customer account value type.
package customer

import "time"

// Customer represents a billing account (value type).
// PlanName references the plan catalog; pricing always uses the plan in
// effect at aggregation time.
type Customer struct {
	ID           string
	Name         string
	CompanyName  string
	ContactEmail string
	PlanName     string
	Active       bool
	CreatedAt    time.Time
}
