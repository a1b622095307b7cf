package memory

import (
	"context"
	"sync"

	"github.com/artpar/meterd/domain/customer"
	"github.com/artpar/meterd/ports"
)

// CustomerStore is an in-memory implementation of ports.CustomerStore.
type CustomerStore struct {
	mu        sync.RWMutex
	customers map[string]customer.Customer
	order     []string
}

// NewCustomerStore creates an in-memory customer store.
func NewCustomerStore() *CustomerStore {
	return &CustomerStore{customers: make(map[string]customer.Customer)}
}

// Put inserts or replaces a customer.
func (s *CustomerStore) Put(c customer.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.customers[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	s.customers[c.ID] = c
}

// Get retrieves a customer by ID.
func (s *CustomerStore) Get(ctx context.Context, id string) (customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return customer.Customer{}, ports.ErrNotFound
	}
	return c, nil
}

// ListActive returns all active customers in insertion order.
func (s *CustomerStore) ListActive(ctx context.Context) ([]customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []customer.Customer
	for _, id := range s.order {
		if c := s.customers[id]; c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// Ensure interface compliance.
var _ ports.CustomerStore = (*CustomerStore)(nil)
