package usage

import (
	"time"

	"github.com/artpar/meterd/domain/plan"
)

// Period identifies one calendar month (value type).
type Period struct {
	Year  int
	Month int // 1..12
}

// PeriodOf returns the calendar month containing t (UTC).
// This is a PURE function.
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Year: u.Year(), Month: int(u.Month())}
}

// Prev returns the calendar month before p.
// This is a PURE function.
func (p Period) Prev() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Bounds returns the half-open UTC interval [start, end) covering p.
// This is a PURE function.
func (p Period) Bounds() (start, end time.Time) {
	start = time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return
}

// Before reports whether p is an earlier month than q.
// This is a PURE function.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

// Valid reports whether p names a real calendar month.
func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= 1 && p.Month <= 12
}

// Summary represents priced monthly usage for one customer.
// Uniquely identified by (CustomerID, Year, Month); re-aggregation
// overwrites totals in place and refreshes UpdatedAt.
type Summary struct {
	ID            string
	CustomerID    string
	Year          int
	Month         int
	PlanName      string
	TotalAPICalls int64
	PricePerCall  float64
	TotalCost     float64
	EndpointUsage map[string]int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Period returns the summary's calendar month.
func (s Summary) Period() Period {
	return Period{Year: s.Year, Month: s.Month}
}

// BuildSummary computes a priced summary from raw counts.
// This is a PURE function: TotalCost == totalCalls * plan.PricePerCall
// holds at the time of computation, and a zero-usage month yields zero
// totals with an empty breakdown.
func BuildSummary(customerID string, p Period, pl plan.Plan, totalCalls int64, breakdown map[string]int64, now time.Time) Summary {
	if breakdown == nil {
		breakdown = map[string]int64{}
	}
	return Summary{
		CustomerID:    customerID,
		Year:          p.Year,
		Month:         p.Month,
		PlanName:      pl.Name,
		TotalAPICalls: totalCalls,
		PricePerCall:  pl.PricePerCall,
		TotalCost:     plan.Cost(pl, totalCalls),
		EndpointUsage: breakdown,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
}
