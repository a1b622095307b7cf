package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/meterd/domain/usage"
	"github.com/artpar/meterd/ports"
)

type summaryKey struct {
	customerID string
	year       int
	month      int
}

// SummaryStore is an in-memory implementation of ports.SummaryStore.
type SummaryStore struct {
	mu        sync.RWMutex
	summaries map[summaryKey]usage.Summary
}

// NewSummaryStore creates an in-memory summary store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{summaries: make(map[summaryKey]usage.Summary)}
}

// GetByCustomerAndPeriod retrieves one summary.
func (s *SummaryStore) GetByCustomerAndPeriod(ctx context.Context, customerID string, p usage.Period) (usage.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.summaries[summaryKey{customerID, p.Year, p.Month}]
	if !ok {
		return usage.Summary{}, ports.ErrNotFound
	}
	return sum, nil
}

// GetByCustomer returns all summaries for a customer, newest period first.
func (s *SummaryStore) GetByCustomer(ctx context.Context, customerID string) ([]usage.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []usage.Summary
	for k, sum := range s.summaries {
		if k.customerID == customerID {
			out = append(out, sum)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// GetByCustomerInRange returns summaries with from <= period <= to, newest first.
func (s *SummaryStore) GetByCustomerInRange(ctx context.Context, customerID string, from, to usage.Period) ([]usage.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []usage.Summary
	for k, sum := range s.summaries {
		if k.customerID != customerID {
			continue
		}
		p := sum.Period()
		if p.Before(from) || to.Before(p) {
			continue
		}
		out = append(out, sum)
	}
	sortNewestFirst(out)
	return out, nil
}

// Upsert inserts or overwrites the summary for its period, preserving
// CreatedAt on update.
func (s *SummaryStore) Upsert(ctx context.Context, sum usage.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := summaryKey{sum.CustomerID, sum.Year, sum.Month}
	if existing, ok := s.summaries[key]; ok {
		sum.ID = existing.ID
		sum.CreatedAt = existing.CreatedAt
	}
	s.summaries[key] = sum
	return nil
}

// Len returns the number of stored summaries (for testing).
func (s *SummaryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.summaries)
}

func sortNewestFirst(summaries []usage.Summary) {
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[j].Period().Before(summaries[i].Period())
	})
}

// Ensure interface compliance.
var _ ports.SummaryStore = (*SummaryStore)(nil)
