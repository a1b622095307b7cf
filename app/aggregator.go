package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/meterd/adapters/metrics"
	"github.com/artpar/meterd/domain/customer"
	"github.com/artpar/meterd/domain/plan"
	"github.com/artpar/meterd/domain/usage"
	"github.com/artpar/meterd/ports"
)

// AggregatorConfig configures the monthly aggregator.
type AggregatorConfig struct {
	CheckInterval time.Duration // daily tick (default 24h)
}

// Aggregator folds a month of raw usage events into priced summaries,
// once per calendar month. A daily tick checks the wall clock; only on
// the 1st does a run happen, targeting the previous month. Re-running a
// period is idempotent: the summary keyed (customer, year, month) is
// overwritten, never duplicated.
type Aggregator struct {
	events    ports.UsageStore
	customers ports.CustomerStore
	summaries ports.SummaryStore
	clock     ports.Clock
	idgen     ports.IDGenerator
	logger    zerolog.Logger
	metrics   *metrics.Collector
	interval  time.Duration

	catalog atomic.Pointer[plan.Catalog]
}

// AggregatorDeps contains dependencies for the Aggregator.
type AggregatorDeps struct {
	Events    ports.UsageStore
	Customers ports.CustomerStore
	Summaries ports.SummaryStore
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    zerolog.Logger
	Metrics   *metrics.Collector // optional
}

// NewAggregator creates the monthly aggregator.
func NewAggregator(deps AggregatorDeps, catalog *plan.Catalog, cfg AggregatorConfig) *Aggregator {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 24 * time.Hour
	}
	a := &Aggregator{
		events:    deps.Events,
		customers: deps.Customers,
		summaries: deps.Summaries,
		clock:     deps.Clock,
		idgen:     deps.IDGen,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		interval:  cfg.CheckInterval,
	}
	a.catalog.Store(catalog)
	return a
}

// UpdateCatalog swaps the plan catalog. Thread-safe.
func (a *Aggregator) UpdateCatalog(catalog *plan.Catalog) {
	a.catalog.Store(catalog)
}

// Run ticks daily until ctx is cancelled. Each tick is a no-op unless
// the wall-clock date is the 1st of the month; a missed 1st (process
// down) is skipped until triggered manually via Regenerate.
func (a *Aggregator) Run(ctx context.Context) {
	a.logger.Info().Dur("check_interval", a.interval).Msg("monthly aggregation job started")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.tick(ctx)
		case <-ctx.Done():
			a.logger.Info().Msg("monthly aggregation job stopped")
			return
		}
	}
}

func (a *Aggregator) tick(ctx context.Context) {
	now := a.clock.Now().UTC()
	if now.Day() != 1 {
		a.logger.Debug().Msg("not the first day of month, skipping aggregation")
		return
	}

	period := usage.PeriodOf(now).Prev()
	a.logger.Info().Int("year", period.Year).Int("month", period.Month).Msg("aggregating previous month")

	if a.GenerateForAllCustomers(ctx, period) {
		a.logger.Info().Int("year", period.Year).Int("month", period.Month).Msg("monthly summaries generated")
	} else {
		a.logger.Warn().Int("year", period.Year).Int("month", period.Month).Msg("some monthly summaries failed to generate")
	}
}

// GenerateForAllCustomers aggregates one period for every active
// customer. A failure for one customer is logged and skipped; the
// return value reports whether every customer succeeded.
func (a *Aggregator) GenerateForAllCustomers(ctx context.Context, p usage.Period) bool {
	customers, err := a.customers.ListActive(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("listing active customers failed")
		if a.metrics != nil {
			a.metrics.AggregationRuns.WithLabelValues("failed").Inc()
		}
		return false
	}

	success := true
	for _, c := range customers {
		if err := a.generateForCustomer(ctx, c, p); err != nil {
			success = false
			a.logger.Error().Err(err).
				Str("customer_id", c.ID).
				Int("year", p.Year).Int("month", p.Month).
				Msg("monthly summary generation failed")
			if a.metrics != nil {
				a.metrics.CustomersFailed.Inc()
			}
			continue
		}
		if a.metrics != nil {
			a.metrics.CustomersAggregated.Inc()
		}
	}

	if a.metrics != nil {
		outcome := "complete"
		if !success {
			outcome = "partial"
		}
		a.metrics.AggregationRuns.WithLabelValues(outcome).Inc()
	}
	return success
}

// Regenerate rebuilds the summary for one customer and period on an
// explicit operator request. Unlike the scheduled run, failures here are
// definite results for the caller.
func (a *Aggregator) Regenerate(ctx context.Context, customerID string, p usage.Period) error {
	if !p.Valid() {
		return fmt.Errorf("invalid period %d-%02d", p.Year, p.Month)
	}

	c, err := a.customers.Get(ctx, customerID)
	if err != nil {
		return fmt.Errorf("customer %s: %w", customerID, err)
	}
	return a.generateForCustomer(ctx, c, p)
}

func (a *Aggregator) generateForCustomer(ctx context.Context, c customer.Customer, p usage.Period) error {
	totalCalls, err := a.events.CountInPeriod(ctx, c.ID, p)
	if err != nil {
		return fmt.Errorf("count usage: %w", err)
	}

	breakdown, err := a.events.EndpointBreakdownInPeriod(ctx, c.ID, p)
	if err != nil {
		return fmt.Errorf("endpoint breakdown: %w", err)
	}

	// Pricing uses the plan currently on the customer record, not the
	// plan active during the usage period.
	pl, ok := a.catalog.Load().Find(c.PlanName)
	if !ok {
		a.logger.Warn().
			Str("customer_id", c.ID).
			Str("plan", c.PlanName).
			Msg("pricing not found for plan, using zero pricing")
		pl = plan.Plan{Name: c.PlanName, Currency: "USD"}
	}

	summary := usage.BuildSummary(c.ID, p, pl, totalCalls, breakdown, a.clock.Now())
	summary.ID = a.idgen.New()

	if err := a.summaries.Upsert(ctx, summary); err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}

	a.logger.Info().
		Str("customer_id", c.ID).
		Int("year", p.Year).Int("month", p.Month).
		Int64("total_calls", totalCalls).
		Float64("total_cost", summary.TotalCost).
		Msg("monthly summary generated")
	return nil
}

// SummariesByCustomer returns all summaries for a customer.
func (a *Aggregator) SummariesByCustomer(ctx context.Context, customerID string) ([]usage.Summary, error) {
	return a.summaries.GetByCustomer(ctx, customerID)
}

// SummaryByPeriod returns the summary for one customer and month.
func (a *Aggregator) SummaryByPeriod(ctx context.Context, customerID string, p usage.Period) (usage.Summary, error) {
	return a.summaries.GetByCustomerAndPeriod(ctx, customerID, p)
}

// SummariesInRange returns summaries between two periods, inclusive.
func (a *Aggregator) SummariesInRange(ctx context.Context, customerID string, from, to usage.Period) ([]usage.Summary, error) {
	return a.summaries.GetByCustomerInRange(ctx, customerID, from, to)
}
