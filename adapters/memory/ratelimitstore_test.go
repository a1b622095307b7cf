package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artpar/meterd/adapters/memory"
	"github.com/artpar/meterd/domain/ratelimit"
)

var rlT0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *memory.RateLimitStore {
	t.Helper()
	s := memory.NewRateLimitStore(memory.RateLimitStoreConfig{
		// Long sweep so tests control eviction explicitly.
		SweepInterval: time.Hour,
	})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckSerializesPerIdentity(t *testing.T) {
	s := newStore(t)
	cfg := ratelimit.Config{Limit: 5, Span: time.Second}

	// 20 concurrent checks for one identity in the same instant: exactly
	// 5 may win the remaining slots.
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Check(context.Background(), "u1", cfg, rlT0)
			if err != nil {
				t.Error(err)
				return
			}
			if res.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Errorf("admitted = %d, want exactly 5", admitted)
	}
}

func TestDistinctIdentitiesDoNotInterfere(t *testing.T) {
	s := newStore(t)
	cfg := ratelimit.Config{Limit: 1, Span: time.Second}

	if res, _ := s.Check(context.Background(), "u1", cfg, rlT0); !res.Allowed {
		t.Fatal("u1 first request denied")
	}
	if res, _ := s.Check(context.Background(), "u2", cfg, rlT0); !res.Allowed {
		t.Error("u2 denied by u1's load")
	}
	if res, _ := s.Check(context.Background(), "u1", cfg, rlT0); res.Allowed {
		t.Error("u1 second request admitted, want denied")
	}
}

func TestIdleEviction(t *testing.T) {
	s := memory.NewRateLimitStore(memory.RateLimitStoreConfig{
		IdleTTL:       2 * time.Second,
		SweepInterval: time.Hour,
	})
	defer s.Close()

	cfg := ratelimit.Config{Limit: 5, Span: time.Second}
	s.Check(context.Background(), "u1", cfg, rlT0)
	s.Check(context.Background(), "u2", cfg, rlT0.Add(3*time.Second))

	if got := s.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}

	s.EvictIdleNow(rlT0.Add(3 * time.Second))

	if got := s.Len(); got != 1 {
		t.Errorf("Len after eviction = %d, want 1 (u1 idle > 2s)", got)
	}
}

func TestWindowSlidesAcrossChecks(t *testing.T) {
	s := newStore(t)
	cfg := ratelimit.Config{Limit: 5, Span: time.Second}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if res, _ := s.Check(ctx, "u1", cfg, rlT0); !res.Allowed {
			t.Fatalf("request %d denied", i+1)
		}
	}
	if res, _ := s.Check(ctx, "u1", cfg, rlT0.Add(100*time.Millisecond)); res.Allowed {
		t.Error("6th request within 1s admitted")
	}
	if res, _ := s.Check(ctx, "u1", cfg, rlT0.Add(1050*time.Millisecond)); !res.Allowed {
		t.Error("request at t0+1.05s denied, want admitted")
	}
}
