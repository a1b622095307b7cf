package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/meterd/adapters/clock"
	"github.com/artpar/meterd/adapters/memory"
	"github.com/artpar/meterd/app"
	"github.com/artpar/meterd/domain/usage"
)

// trackingStore counts concurrent Append calls and records call times.
type trackingStore struct {
	mu        sync.Mutex
	inflight  int
	maxSeen   int
	calls     []time.Time
	delay     time.Duration
	failWith  error
	persisted int
}

func (s *trackingStore) Append(ctx context.Context, e usage.Event) error {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.maxSeen {
		s.maxSeen = s.inflight
	}
	s.calls = append(s.calls, time.Now())
	delay := s.delay
	failWith := s.failWith
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	s.inflight--
	if failWith == nil {
		s.persisted++
	}
	s.mu.Unlock()
	return failWith
}

func (s *trackingStore) CountInPeriod(ctx context.Context, customerID string, p usage.Period) (int64, error) {
	return 0, nil
}

func (s *trackingStore) EndpointBreakdownInPeriod(ctx context.Context, customerID string, p usage.Period) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (s *trackingStore) snapshot() (maxSeen, persisted int, calls []time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen, s.persisted, append([]time.Time(nil), s.calls...)
}

func runPipeline(t *testing.T, store *trackingStore, cfg app.IngestConfig) (*app.IngestPipeline, context.CancelFunc, chan struct{}) {
	t.Helper()

	p := app.NewIngestPipeline(app.IngestDeps{
		Store:  store,
		Clock:  clock.Real{},
		Logger: zerolog.Nop(),
	}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	return p, cancel, done
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPipelinePersistsAllEvents(t *testing.T) {
	store := &trackingStore{}
	p, cancel, done := runPipeline(t, store, app.IngestConfig{ShutdownGrace: time.Second})
	defer func() { cancel(); <-done }()

	for i := 0; i < 25; i++ {
		p.Record(usage.NewEvent("c1", "u1", "/api/orders", time.Now()))
	}

	waitFor(t, 2*time.Second, func() bool {
		_, persisted, _ := store.snapshot()
		return persisted == 25
	})
}

func TestPipelineConcurrencyCeiling(t *testing.T) {
	store := &trackingStore{delay: 30 * time.Millisecond}
	p, cancel, done := runPipeline(t, store, app.IngestConfig{
		MaxConcurrent: 3,
		ShutdownGrace: time.Second,
	})
	defer func() { cancel(); <-done }()

	for i := 0; i < 12; i++ {
		p.Record(usage.NewEvent("c1", "u1", "/api/orders", time.Now()))
	}

	waitFor(t, 3*time.Second, func() bool {
		_, persisted, _ := store.snapshot()
		return persisted == 12
	})

	maxSeen, _, _ := store.snapshot()
	if maxSeen > 3 {
		t.Errorf("max concurrent persists = %d, want <= 3", maxSeen)
	}
}

func TestPipelineCooldownAfterRateLimit(t *testing.T) {
	store := &trackingStore{}
	cooldown := 150 * time.Millisecond
	p, cancel, done := runPipeline(t, store, app.IngestConfig{
		RateLimit:     3,
		RateWindow:    time.Minute,
		Cooldown:      cooldown,
		ShutdownGrace: time.Second,
	})
	defer func() { cancel(); <-done }()

	// Fill the rate window.
	for i := 0; i < 3; i++ {
		p.Record(usage.NewEvent("c1", "u1", "/api/orders", time.Now()))
	}
	waitFor(t, 2*time.Second, func() bool {
		_, persisted, _ := store.snapshot()
		return persisted == 3
	})

	// The next accepted event must be delayed by the cooldown.
	before := time.Now()
	p.Record(usage.NewEvent("c1", "u1", "/api/orders", time.Now()))
	waitFor(t, 2*time.Second, func() bool {
		_, persisted, _ := store.snapshot()
		return persisted == 4
	})

	_, _, calls := store.snapshot()
	delayed := calls[3].Sub(before)
	if delayed < cooldown-20*time.Millisecond {
		t.Errorf("4th dispatch after %v, want >= cooldown %v", delayed, cooldown)
	}
}

func TestPipelineDropsFailedPersists(t *testing.T) {
	store := memory.NewUsageStore()
	store.FailAppendsWith(errors.New("disk full"))

	p := app.NewIngestPipeline(app.IngestDeps{
		Store:  store,
		Clock:  clock.Real{},
		Logger: zerolog.Nop(),
	}, app.IngestConfig{ShutdownGrace: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	defer func() { cancel(); <-done }()

	p.Record(usage.NewEvent("c1", "u1", "/api/orders", time.Now()))
	p.Record(usage.NewEvent("c1", "u1", "/api/orders", time.Now()))
	time.Sleep(100 * time.Millisecond)

	if store.Len() != 0 {
		t.Errorf("failed persists stored %d events, want 0", store.Len())
	}

	// The pipeline keeps draining after failures; no retry of the dropped events.
	store.FailAppendsWith(nil)
	p.Record(usage.NewEvent("c1", "u1", "/api/items", time.Now()))
	waitFor(t, 2*time.Second, func() bool { return store.Len() == 1 })
}

func TestPipelineRecordAfterShutdownIsNoop(t *testing.T) {
	store := &trackingStore{}
	p, cancel, done := runPipeline(t, store, app.IngestConfig{ShutdownGrace: 100 * time.Millisecond})

	cancel()
	<-done

	// Must not block or panic.
	p.Record(usage.NewEvent("c1", "u1", "/api/orders", time.Now()))

	_, persisted, _ := store.snapshot()
	if persisted != 0 {
		t.Errorf("persisted = %d after shutdown, want 0", persisted)
	}
}
