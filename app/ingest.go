package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/artpar/meterd/adapters/metrics"
	"github.com/artpar/meterd/domain/usage"
	"github.com/artpar/meterd/ports"
)

// IngestConfig configures the usage ingest pipeline.
type IngestConfig struct {
	MaxConcurrent  int           // concurrency ceiling for persists (default 50)
	RateLimit      int           // persists allowed per RateWindow before cooling down (default 1000)
	RateWindow     time.Duration // trailing window for the rate valve (default 60s)
	Cooldown       time.Duration // pause once the valve trips (default 30s)
	PersistTimeout time.Duration // per-event write deadline (default 30s)
	ShutdownGrace  time.Duration // time granted to in-flight persists on shutdown (default 10s)
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 50
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 1000
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// IngestPipeline drains queued usage events and persists them under a
// concurrency ceiling and a rolling-rate valve.
//
// Record never blocks and never fails the caller: usage logging is
// best-effort telemetry, so a failed write is logged and dropped, never
// retried and never surfaced to the request path. The queue is memory
// only; events still queued at shutdown are discarded.
type IngestPipeline struct {
	store   ports.UsageStore
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector
	cfg     IngestConfig

	mu     sync.Mutex
	queue  []usage.Event
	closed bool
	wake   chan struct{}

	sem      *semaphore.Weighted
	inflight sync.WaitGroup

	rateMu sync.Mutex
	recent []time.Time // completion times of persists inside the rate window
}

// IngestDeps contains dependencies for the IngestPipeline.
type IngestDeps struct {
	Store   ports.UsageStore
	Clock   ports.Clock
	Logger  zerolog.Logger
	Metrics *metrics.Collector // optional
}

// NewIngestPipeline creates the pipeline. Call Run to start draining.
func NewIngestPipeline(deps IngestDeps, cfg IngestConfig) *IngestPipeline {
	cfg = cfg.withDefaults()
	return &IngestPipeline{
		store:   deps.Store,
		clock:   deps.Clock,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Record queues a usage event for asynchronous persistence. Non-blocking;
// events recorded after shutdown begins are silently dropped.
func (p *IngestPipeline) Record(e usage.Event) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, e)
	depth := len(p.queue)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.QueueDepth.Set(float64(depth))
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is cancelled, then grants in-flight
// persists the shutdown grace period before returning.
func (p *IngestPipeline) Run(ctx context.Context) {
	p.logger.Info().
		Int("max_concurrent", p.cfg.MaxConcurrent).
		Int("rate_limit", p.cfg.RateLimit).
		Dur("rate_window", p.cfg.RateWindow).
		Dur("cooldown", p.cfg.Cooldown).
		Msg("usage ingest pipeline started")

	for {
		e, ok := p.next(ctx)
		if !ok {
			break
		}

		// Soft valve protecting the store from aggregate load: once the
		// trailing window fills, hold the whole drain loop for the
		// cooldown before dispatching the next event.
		if p.persistedInWindow(p.clock.Now()) >= p.cfg.RateLimit {
			p.logger.Warn().
				Int("rate_limit", p.cfg.RateLimit).
				Dur("cooldown", p.cfg.Cooldown).
				Msg("ingest rate limit reached, cooling down")
			if p.metrics != nil {
				p.metrics.CooldownsTotal.Inc()
			}
			select {
			case <-time.After(p.cfg.Cooldown):
			case <-ctx.Done():
			}
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}

		p.inflight.Add(1)
		go p.persist(e)
	}

	p.stop()
	p.awaitInflight()
	p.logger.Info().Msg("usage ingest pipeline stopped")
}

// next returns the oldest queued event, blocking until one arrives or
// ctx is cancelled.
func (p *IngestPipeline) next(ctx context.Context) (usage.Event, bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			e := p.queue[0]
			p.queue = p.queue[1:]
			depth := len(p.queue)
			p.mu.Unlock()
			if p.metrics != nil {
				p.metrics.QueueDepth.Set(float64(depth))
			}
			return e, true
		}
		p.mu.Unlock()

		select {
		case <-p.wake:
		case <-ctx.Done():
			return usage.Event{}, false
		}
	}
}

func (p *IngestPipeline) persist(e usage.Event) {
	defer p.inflight.Done()
	defer p.sem.Release(1)

	if p.metrics != nil {
		p.metrics.PersistsInFlight.Inc()
		defer p.metrics.PersistsInFlight.Dec()
	}

	// Detached from the drain context so cancellation does not abort a
	// write mid-flight; the shutdown grace period bounds how long these
	// may linger.
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PersistTimeout)
	defer cancel()

	if err := p.store.Append(ctx, e); err != nil {
		p.logger.Error().Err(err).
			Str("customer_id", e.CustomerID).
			Str("user_id", e.UserID).
			Str("endpoint", e.Endpoint).
			Msg("usage event persist failed, dropping")
		if p.metrics != nil {
			p.metrics.DroppedTotal.Inc()
		}
		return
	}

	p.notePersisted(p.clock.Now())
	if p.metrics != nil {
		p.metrics.PersistedTotal.Inc()
	}
}

// persistedInWindow returns how many persists completed within the
// trailing rate window, pruning older entries.
func (p *IngestPipeline) persistedInWindow(now time.Time) int {
	p.rateMu.Lock()
	defer p.rateMu.Unlock()

	cutoff := now.Add(-p.cfg.RateWindow)
	i := 0
	for i < len(p.recent) && p.recent[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		p.recent = append(p.recent[:0], p.recent[i:]...)
	}
	return len(p.recent)
}

func (p *IngestPipeline) notePersisted(at time.Time) {
	p.rateMu.Lock()
	defer p.rateMu.Unlock()
	p.recent = append(p.recent, at)
}

func (p *IngestPipeline) stop() {
	p.mu.Lock()
	p.closed = true
	discarded := len(p.queue)
	p.queue = nil
	p.mu.Unlock()

	if discarded > 0 {
		p.logger.Warn().Int("count", discarded).Msg("discarding queued usage events on shutdown")
	}
}

func (p *IngestPipeline) awaitInflight() {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownGrace):
		p.logger.Warn().Dur("grace", p.cfg.ShutdownGrace).Msg("abandoning in-flight usage persists")
	}
}

// Ensure interface compliance.
var _ ports.UsageRecorder = (*IngestPipeline)(nil)
