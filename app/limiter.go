// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/meterd/adapters/metrics"
	"github.com/artpar/meterd/domain/identity"
	"github.com/artpar/meterd/domain/plan"
	"github.com/artpar/meterd/domain/ratelimit"
	"github.com/artpar/meterd/ports"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed     bool
	Unthrottled bool      // no principal or unknown plan: passed through without counting
	Remaining   int       // admissions left in the window (throttled decisions only)
	RetryAt     time.Time // when the window frees a slot (denials only)
}

// Limiter performs per-identity sliding-window admission checks against
// the plan catalog. The catalog is swapped atomically on config reload;
// window state is owned by the injected store.
type Limiter struct {
	store   ports.RateLimitStore
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector
	span    time.Duration

	catalog atomic.Pointer[plan.Catalog]
}

// LimiterDeps contains dependencies for the Limiter.
type LimiterDeps struct {
	Store   ports.RateLimitStore
	Clock   ports.Clock
	Logger  zerolog.Logger
	Metrics *metrics.Collector // optional
}

// NewLimiter creates an admission limiter over the given catalog.
func NewLimiter(deps LimiterDeps, catalog *plan.Catalog) *Limiter {
	l := &Limiter{
		store:   deps.Store,
		clock:   deps.Clock,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		span:    time.Second,
	}
	l.catalog.Store(catalog)
	return l
}

// UpdateCatalog swaps the plan catalog. Thread-safe; called on config
// reload while admission checks are running.
func (l *Limiter) UpdateCatalog(catalog *plan.Catalog) {
	l.catalog.Store(catalog)
}

// Admit checks whether the request from p may proceed.
//
// A nil principal is allowed through unthrottled: throttling depends on
// knowing the plan, and an unresolvable identity must not become a
// denial of service. The same fail-open rule applies when the plan name
// does not resolve in the catalog.
func (l *Limiter) Admit(ctx context.Context, p *identity.Principal) Decision {
	if p == nil {
		if l.metrics != nil {
			l.metrics.Unthrottled.Inc()
		}
		return Decision{Allowed: true, Unthrottled: true}
	}

	pl, ok := l.catalog.Load().Find(p.Plan)
	if !ok {
		l.logger.Warn().
			Str("plan", p.Plan).
			Str("user_id", p.UserID).
			Msg("plan not found in catalog, admitting unthrottled")
		if l.metrics != nil {
			l.metrics.UnknownPlans.WithLabelValues(p.Plan).Inc()
		}
		return Decision{Allowed: true, Unthrottled: true}
	}

	cfg := ratelimit.Config{Limit: pl.RequestsPerSecond, Span: l.span}
	res, err := l.store.Check(ctx, p.Key(), cfg, l.clock.Now())
	if err != nil {
		// Window state is ephemeral; losing it fails open.
		l.logger.Error().Err(err).Str("user_id", p.UserID).Msg("rate limit check failed, admitting")
		return Decision{Allowed: true, Unthrottled: true}
	}

	if !res.Allowed {
		l.logger.Warn().
			Str("user_id", p.UserID).
			Str("plan", p.Plan).
			Msg("rate limit exceeded")
		if l.metrics != nil {
			l.metrics.RejectedTotal.WithLabelValues(p.Plan).Inc()
		}
		return Decision{Allowed: false, RetryAt: res.RetryAt}
	}

	if l.metrics != nil {
		l.metrics.AdmittedTotal.WithLabelValues(p.Plan).Inc()
	}
	return Decision{Allowed: true, Remaining: res.Remaining}
}
