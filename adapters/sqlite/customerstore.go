package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/meterd/domain/customer"
	"github.com/artpar/meterd/ports"
)

// CustomerStore implements ports.CustomerStore using SQLite.
type CustomerStore struct {
	db *DB
}

// NewCustomerStore creates a new SQLite customer store.
func NewCustomerStore(db *DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// Get retrieves a customer by ID.
func (s *CustomerStore) Get(ctx context.Context, id string) (customer.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, company_name, contact_email, plan_name, active, created_at
		FROM customers
		WHERE id = ?
	`, id)

	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return customer.Customer{}, ports.ErrNotFound
	}
	if err != nil {
		return customer.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// ListActive returns all active customers.
func (s *CustomerStore) ListActive(ctx context.Context) ([]customer.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, company_name, contact_email, plan_name, active, created_at
		FROM customers
		WHERE active = 1
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active customers: %w", err)
	}
	defer rows.Close()

	var out []customer.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return out, nil
}

// Create stores a new customer (used by the CLI and tests).
func (s *CustomerStore) Create(ctx context.Context, c customer.Customer) error {
	active := 0
	if c.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, company_name, contact_email, plan_name, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.CompanyName, c.ContactEmail, c.PlanName, active, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (customer.Customer, error) {
	var c customer.Customer
	var active int
	var createdAt time.Time
	if err := row.Scan(&c.ID, &c.Name, &c.CompanyName, &c.ContactEmail, &c.PlanName, &active, &createdAt); err != nil {
		return customer.Customer{}, err
	}
	c.Active = active != 0
	c.CreatedAt = createdAt.UTC()
	return c, nil
}

// Ensure interface compliance.
var _ ports.CustomerStore = (*CustomerStore)(nil)
