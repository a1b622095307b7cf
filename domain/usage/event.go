// Package usage provides usage event and monthly summary value types plus
// the pure functions that turn raw counts into priced summaries.
package usage

import "time"

// Event represents a single metered API call (immutable value type).
// Events are created on every admitted request and persisted exactly once,
// best-effort; they are never mutated or deleted.
type Event struct {
	CustomerID string
	UserID     string
	Endpoint   string
	Timestamp  time.Time // always UTC
}

// NewEvent creates a usage event with the timestamp normalized to UTC.
func NewEvent(customerID, userID, endpoint string, at time.Time) Event {
	return Event{
		CustomerID: customerID,
		UserID:     userID,
		Endpoint:   endpoint,
		Timestamp:  at.UTC(),
	}
}
