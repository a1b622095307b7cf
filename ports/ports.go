// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/artpar/meterd/domain/customer"
	"github.com/artpar/meterd/domain/identity"
	"github.com/artpar/meterd/domain/ratelimit"
	"github.com/artpar/meterd/domain/usage"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// UsageStore persists raw usage events and answers period queries.
type UsageStore interface {
	// Append stores a single usage event.
	Append(ctx context.Context, e usage.Event) error

	// CountInPeriod returns the number of events for a customer in a month.
	CountInPeriod(ctx context.Context, customerID string, p usage.Period) (int64, error)

	// EndpointBreakdownInPeriod returns per-endpoint event counts for a
	// customer in a month. A customer with no events yields an empty map.
	EndpointBreakdownInPeriod(ctx context.Context, customerID string, p usage.Period) (map[string]int64, error)
}

// CustomerStore persists customer accounts.
type CustomerStore interface {
	// Get retrieves a customer by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (customer.Customer, error)

	// ListActive returns all active customers.
	ListActive(ctx context.Context) ([]customer.Customer, error)
}

// SummaryStore persists monthly usage summaries, unique per
// (customerID, year, month).
type SummaryStore interface {
	// GetByCustomerAndPeriod retrieves one summary. Returns ErrNotFound if absent.
	GetByCustomerAndPeriod(ctx context.Context, customerID string, p usage.Period) (usage.Summary, error)

	// GetByCustomer returns all summaries for a customer, newest period first.
	GetByCustomer(ctx context.Context, customerID string) ([]usage.Summary, error)

	// GetByCustomerInRange returns summaries with from <= period <= to,
	// newest period first.
	GetByCustomerInRange(ctx context.Context, customerID string, from, to usage.Period) ([]usage.Summary, error)

	// Upsert inserts or fully overwrites the summary for its period,
	// preserving CreatedAt on update.
	Upsert(ctx context.Context, s usage.Summary) error
}

// RateLimitStore holds per-identity sliding-window state. The
// read-prune-check-append cycle for one identity must be atomic; checks
// for distinct identities must not block each other.
type RateLimitStore interface {
	// Check atomically prunes, checks and updates the window for keyID.
	Check(ctx context.Context, keyID string, cfg ratelimit.Config, now time.Time) (ratelimit.Result, error)
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// UsageRecorder accepts usage events for asynchronous persistence.
type UsageRecorder interface {
	// Record queues a usage event. Never blocks and never fails the
	// caller; events are silently dropped after shutdown.
	Record(e usage.Event)
}

// -----------------------------------------------------------------------------
// Identity Ports
// -----------------------------------------------------------------------------

// IdentityResolver yields the verified principal for a request, if any.
// Credential issuance and validation mechanics live behind this port.
type IdentityResolver interface {
	// Resolve returns the request principal, or false when the request
	// carries no verifiable identity.
	Resolve(r *http.Request) (identity.Principal, bool)
}
