package sqlite_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/artpar/meterd/adapters/sqlite"
	"github.com/artpar/meterd/domain/customer"
	"github.com/artpar/meterd/domain/usage"
	"github.com/artpar/meterd/ports"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	f, err := os.CreateTemp("", "meterd-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		os.Remove(path)
	})
	return db
}

func TestUsageStoreAppendAndPeriodQueries(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	march := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []usage.Event{
		usage.NewEvent("c1", "u1", "/api/orders", march),
		usage.NewEvent("c1", "u1", "/api/orders", march.Add(time.Minute)),
		usage.NewEvent("c1", "u2", "/api/items", march.Add(2*time.Minute)),
		// Boundary: last nanosecond of March counts, first instant of April does not.
		usage.NewEvent("c1", "u1", "/api/orders", time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)),
		usage.NewEvent("c1", "u1", "/api/orders", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
		// Other customer, same month.
		usage.NewEvent("c2", "u9", "/api/orders", march),
	}
	for _, e := range events {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	count, err := store.CountInPeriod(ctx, "c1", usage.Period{Year: 2025, Month: 3})
	if err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Errorf("CountInPeriod = %d, want 4", count)
	}

	breakdown, err := store.EndpointBreakdownInPeriod(ctx, "c1", usage.Period{Year: 2025, Month: 3})
	if err != nil {
		t.Fatal(err)
	}
	if breakdown["/api/orders"] != 3 {
		t.Errorf("breakdown /api/orders = %d, want 3", breakdown["/api/orders"])
	}
	if breakdown["/api/items"] != 1 {
		t.Errorf("breakdown /api/items = %d, want 1", breakdown["/api/items"])
	}

	empty, err := store.EndpointBreakdownInPeriod(ctx, "c1", usage.Period{Year: 2024, Month: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("empty period breakdown = %v, want empty", empty)
	}
}

func TestCustomerStore(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewCustomerStore(db)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	customers := []customer.Customer{
		{ID: "c1", Name: "Acme", CompanyName: "Acme Corp", ContactEmail: "ops@acme.test", PlanName: "Pro", Active: true, CreatedAt: now},
		{ID: "c2", Name: "Globex", PlanName: "Free", Active: false, CreatedAt: now.Add(time.Hour)},
		{ID: "c3", Name: "Initech", PlanName: "Enterprise", Active: true, CreatedAt: now.Add(2 * time.Hour)},
	}
	for _, c := range customers {
		if err := store.Create(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PlanName != "Pro" || !got.Active {
		t.Errorf("Get(c1) = %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); err != ports.ErrNotFound {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("ListActive len = %d, want 2", len(active))
	}
	if active[0].ID != "c1" || active[1].ID != "c3" {
		t.Errorf("ListActive order = %s, %s", active[0].ID, active[1].ID)
	}
}

func TestSummaryStoreUpsertIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewSummaryStore(db)
	ctx := context.Background()

	created := time.Date(2025, 4, 1, 0, 5, 0, 0, time.UTC)
	sum := usage.Summary{
		ID: "s1", CustomerID: "c1", Year: 2025, Month: 3, PlanName: "Pro",
		TotalAPICalls: 342, PricePerCall: 0.01, TotalCost: 3.42,
		EndpointUsage: map[string]int64{"/api/orders": 342},
		CreatedAt:     created, UpdatedAt: created,
	}
	if err := store.Upsert(ctx, sum); err != nil {
		t.Fatal(err)
	}

	// Re-run with unchanged underlying data: same totals, still one row.
	rerun := sum
	rerun.ID = "s2"
	rerun.CreatedAt = created.Add(time.Hour)
	rerun.UpdatedAt = created.Add(time.Hour)
	if err := store.Upsert(ctx, rerun); err != nil {
		t.Fatal(err)
	}

	all, err := store.GetByCustomer(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("rows = %d, want 1 (unique customer+year+month)", len(all))
	}

	got := all[0]
	if got.ID != "s1" {
		t.Errorf("ID = %q, want original s1", got.ID)
	}
	if got.TotalAPICalls != 342 || got.TotalCost != 3.42 {
		t.Errorf("totals = %d / %f, want 342 / 3.42", got.TotalAPICalls, got.TotalCost)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want original %v", got.CreatedAt, created)
	}
	if !got.UpdatedAt.Equal(created.Add(time.Hour)) {
		t.Errorf("UpdatedAt = %v, want refreshed", got.UpdatedAt)
	}
	if got.EndpointUsage["/api/orders"] != 342 {
		t.Errorf("EndpointUsage = %v", got.EndpointUsage)
	}
}

func TestSummaryStoreRangeQuery(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewSummaryStore(db)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, p := range []usage.Period{
		{Year: 2024, Month: 11},
		{Year: 2024, Month: 12},
		{Year: 2025, Month: 1},
		{Year: 2025, Month: 4},
	} {
		s := usage.Summary{
			ID: "s" + string(rune('a'+i)), CustomerID: "c1",
			Year: p.Year, Month: p.Month, PlanName: "Pro",
			EndpointUsage: map[string]int64{},
			CreatedAt:     now, UpdatedAt: now,
		}
		if err := store.Upsert(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.GetByCustomerInRange(ctx, "c1",
		usage.Period{Year: 2024, Month: 12}, usage.Period{Year: 2025, Month: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].Year != 2025 || got[0].Month != 1 {
		t.Errorf("first = %d-%02d, want 2025-01", got[0].Year, got[0].Month)
	}
	if got[1].Year != 2024 || got[1].Month != 12 {
		t.Errorf("second = %d-%02d, want 2024-12", got[1].Year, got[1].Month)
	}
}
