// Package memory provides in-memory implementations of storage ports.
// The rate-limit store is the production implementation; the other stores
// serve development mode and tests.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/meterd/domain/ratelimit"
	"github.com/artpar/meterd/ports"
)

// windowShard is a single shard of the rate-limit store.
type windowShard struct {
	mu      sync.Mutex
	windows map[string]ratelimit.Window
}

// RateLimitStore is a sharded in-memory sliding-window store. Sharding by
// identity keeps checks for distinct identities from contending on one
// lock, while the per-shard mutex makes the prune-check-append cycle for
// one identity atomic.
//
// Window records live only as long as the identity stays active: a
// background sweep evicts identities idle longer than the configured TTL,
// bounding memory for one-off callers. State is not durable; a restart
// fails open.
type RateLimitStore struct {
	shards    []*windowShard
	numShards int
	idleTTL   time.Duration
	clock     ports.Clock
	sweep     *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// RateLimitStoreConfig configures the rate-limit store.
type RateLimitStoreConfig struct {
	NumShards     int           // default 32
	IdleTTL       time.Duration // evict identities idle this long (default 2s)
	SweepInterval time.Duration // default IdleTTL
	Clock         ports.Clock   // default wall clock via time.Now at sweep
}

// NewRateLimitStore creates a sharded sliding-window store and starts its
// eviction sweep.
func NewRateLimitStore(cfg RateLimitStoreConfig) *RateLimitStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.IdleTTL
	}

	s := &RateLimitStore{
		shards:    make([]*windowShard, cfg.NumShards),
		numShards: cfg.NumShards,
		idleTTL:   cfg.IdleTTL,
		clock:     cfg.Clock,
		done:      make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &windowShard{windows: make(map[string]ratelimit.Window)}
	}

	s.sweep = time.NewTicker(cfg.SweepInterval)
	go s.sweepLoop()

	return s
}

func (s *RateLimitStore) shard(keyID string) *windowShard {
	h := fnv.New32a()
	h.Write([]byte(keyID))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Check atomically prunes, checks and updates the window for keyID.
func (s *RateLimitStore) Check(ctx context.Context, keyID string, cfg ratelimit.Config, now time.Time) (ratelimit.Result, error) {
	shard := s.shard(keyID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	result, next := ratelimit.Check(shard.windows[keyID], cfg, now)
	shard.windows[keyID] = next

	return result, nil
}

func (s *RateLimitStore) sweepLoop() {
	for {
		select {
		case <-s.sweep.C:
			s.evictIdle(s.now())
		case <-s.done:
			return
		}
	}
}

func (s *RateLimitStore) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

// evictIdle removes window records for identities with no request inside
// the idle TTL. Exported for tests via EvictIdleNow.
func (s *RateLimitStore) evictIdle(now time.Time) {
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, w := range shard.windows {
			if ratelimit.IsIdle(w, s.idleTTL, now) {
				delete(shard.windows, key)
			}
		}
		shard.mu.Unlock()
	}
}

// EvictIdleNow runs one eviction pass at the given instant (for testing).
func (s *RateLimitStore) EvictIdleNow(now time.Time) {
	s.evictIdle(now)
}

// Len returns the number of tracked identities (for testing).
func (s *RateLimitStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.windows)
		shard.mu.Unlock()
	}
	return total
}

// Close stops the eviction sweep.
func (s *RateLimitStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.sweep.Stop()
	})
	return nil
}

// Ensure interface compliance.
var _ ports.RateLimitStore = (*RateLimitStore)(nil)
