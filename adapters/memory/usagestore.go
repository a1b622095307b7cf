package memory

import (
	"context"
	"sync"

	"github.com/artpar/meterd/domain/usage"
	"github.com/artpar/meterd/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
type UsageStore struct {
	mu     sync.RWMutex
	events []usage.Event

	// Optional failure injection for tests.
	appendErr error
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{}
}

// FailAppendsWith makes subsequent Append calls return err (nil restores).
func (s *UsageStore) FailAppendsWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// Append stores a single usage event.
func (s *UsageStore) Append(ctx context.Context, e usage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.events = append(s.events, e)
	return nil
}

// CountInPeriod returns the number of events for a customer in a month.
func (s *UsageStore) CountInPeriod(ctx context.Context, customerID string, p usage.Period) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := p.Bounds()
	var n int64
	for _, e := range s.events {
		if e.CustomerID == customerID && !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			n++
		}
	}
	return n, nil
}

// EndpointBreakdownInPeriod returns per-endpoint counts for a customer in a month.
func (s *UsageStore) EndpointBreakdownInPeriod(ctx context.Context, customerID string, p usage.Period) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := p.Bounds()
	breakdown := make(map[string]int64)
	for _, e := range s.events {
		if e.CustomerID == customerID && !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			breakdown[e.Endpoint]++
		}
	}
	return breakdown, nil
}

// Events returns a copy of all stored events (for testing).
func (s *UsageStore) Events() []usage.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]usage.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of stored events.
func (s *UsageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
