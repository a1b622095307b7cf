package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/meterd/domain/usage"
	"github.com/artpar/meterd/ports"
)

// SummaryStore implements ports.SummaryStore using SQLite. The endpoint
// breakdown is stored as a JSON column, one row per (customer, year, month).
type SummaryStore struct {
	db *DB
}

// NewSummaryStore creates a new SQLite summary store.
func NewSummaryStore(db *DB) *SummaryStore {
	return &SummaryStore{db: db}
}

const summaryColumns = `id, customer_id, year, month, plan_name,
	total_api_calls, price_per_call, total_cost, endpoint_usage_json,
	created_at, updated_at`

// GetByCustomerAndPeriod retrieves one summary.
func (s *SummaryStore) GetByCustomerAndPeriod(ctx context.Context, customerID string, p usage.Period) (usage.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM monthly_usage_summaries
		WHERE customer_id = ? AND year = ? AND month = ?
	`, customerID, p.Year, p.Month)

	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return usage.Summary{}, ports.ErrNotFound
	}
	if err != nil {
		return usage.Summary{}, fmt.Errorf("get summary: %w", err)
	}
	return sum, nil
}

// GetByCustomer returns all summaries for a customer, newest period first.
func (s *SummaryStore) GetByCustomer(ctx context.Context, customerID string) ([]usage.Summary, error) {
	return s.query(ctx, `
		SELECT `+summaryColumns+`
		FROM monthly_usage_summaries
		WHERE customer_id = ?
		ORDER BY year DESC, month DESC
	`, customerID)
}

// GetByCustomerInRange returns summaries with from <= period <= to, newest first.
func (s *SummaryStore) GetByCustomerInRange(ctx context.Context, customerID string, from, to usage.Period) ([]usage.Summary, error) {
	return s.query(ctx, `
		SELECT `+summaryColumns+`
		FROM monthly_usage_summaries
		WHERE customer_id = ?
		  AND (year * 12 + month) >= (? * 12 + ?)
		  AND (year * 12 + month) <= (? * 12 + ?)
		ORDER BY year DESC, month DESC
	`, customerID, from.Year, from.Month, to.Year, to.Month)
}

// Upsert inserts or fully overwrites the summary for its period. The
// created_at of an existing row is preserved; updated_at is refreshed.
func (s *SummaryStore) Upsert(ctx context.Context, sum usage.Summary) error {
	breakdown, err := json.Marshal(sum.EndpointUsage)
	if err != nil {
		return fmt.Errorf("marshal endpoint usage: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monthly_usage_summaries (`+summaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id, year, month) DO UPDATE SET
			plan_name = excluded.plan_name,
			total_api_calls = excluded.total_api_calls,
			price_per_call = excluded.price_per_call,
			total_cost = excluded.total_cost,
			endpoint_usage_json = excluded.endpoint_usage_json,
			updated_at = excluded.updated_at
	`, sum.ID, sum.CustomerID, sum.Year, sum.Month, sum.PlanName,
		sum.TotalAPICalls, sum.PricePerCall, sum.TotalCost, string(breakdown),
		sum.CreatedAt.UTC(), sum.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (s *SummaryStore) query(ctx context.Context, q string, args ...any) ([]usage.Summary, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []usage.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

func scanSummary(row rowScanner) (usage.Summary, error) {
	var sum usage.Summary
	var breakdown string
	var createdAt, updatedAt time.Time
	err := row.Scan(&sum.ID, &sum.CustomerID, &sum.Year, &sum.Month, &sum.PlanName,
		&sum.TotalAPICalls, &sum.PricePerCall, &sum.TotalCost, &breakdown,
		&createdAt, &updatedAt)
	if err != nil {
		return usage.Summary{}, err
	}

	sum.EndpointUsage = make(map[string]int64)
	// A malformed breakdown column degrades to an empty map rather than
	// failing the read.
	_ = json.Unmarshal([]byte(breakdown), &sum.EndpointUsage)

	sum.CreatedAt = createdAt.UTC()
	sum.UpdatedAt = updatedAt.UTC()
	return sum, nil
}

// Ensure interface compliance.
var _ ports.SummaryStore = (*SummaryStore)(nil)
