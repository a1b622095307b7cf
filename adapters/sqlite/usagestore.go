package sqlite

import (
	"context"
	"fmt"

	"github.com/artpar/meterd/domain/usage"
	"github.com/artpar/meterd/ports"
)

// UsageStore implements ports.UsageStore using SQLite.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Append stores a single usage event. Timestamps are stored in UTC for
// consistent period queries.
func (s *UsageStore) Append(ctx context.Context, e usage.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_events (customer_id, user_id, endpoint, timestamp)
		VALUES (?, ?, ?, ?)
	`, e.CustomerID, e.UserID, e.Endpoint, e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("append usage event: %w", err)
	}
	return nil
}

// CountInPeriod returns the number of events for a customer in a month.
func (s *UsageStore) CountInPeriod(ctx context.Context, customerID string, p usage.Period) (int64, error) {
	start, end := p.Bounds()

	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM usage_events
		WHERE customer_id = ?
		  AND datetime(timestamp) >= datetime(?)
		  AND datetime(timestamp) < datetime(?)
	`, customerID, sqlTime(start), sqlTime(end)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usage events: %w", err)
	}
	return count, nil
}

// EndpointBreakdownInPeriod returns per-endpoint counts for a customer in a month.
func (s *UsageStore) EndpointBreakdownInPeriod(ctx context.Context, customerID string, p usage.Period) (map[string]int64, error) {
	start, end := p.Bounds()

	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, COUNT(*)
		FROM usage_events
		WHERE customer_id = ?
		  AND datetime(timestamp) >= datetime(?)
		  AND datetime(timestamp) < datetime(?)
		GROUP BY endpoint
	`, customerID, sqlTime(start), sqlTime(end))
	if err != nil {
		return nil, fmt.Errorf("query endpoint breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := make(map[string]int64)
	for rows.Next() {
		var endpoint string
		var count int64
		if err := rows.Scan(&endpoint, &count); err != nil {
			return nil, fmt.Errorf("scan endpoint breakdown: %w", err)
		}
		breakdown[endpoint] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate endpoint breakdown: %w", err)
	}
	return breakdown, nil
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
