package ratelimit_test

import (
	"testing"
	"time"

	"github.com/artpar/meterd/domain/ratelimit"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func cfg(limit int) ratelimit.Config {
	return ratelimit.Config{Limit: limit, Span: time.Second}
}

func TestCheckAdmitsUpToLimit(t *testing.T) {
	var w ratelimit.Window
	var res ratelimit.Result

	for i := 0; i < 5; i++ {
		res, w = ratelimit.Check(w, cfg(5), t0)
		if !res.Allowed {
			t.Fatalf("request %d denied, want admitted", i+1)
		}
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}

	res, w = ratelimit.Check(w, cfg(5), t0.Add(100*time.Millisecond))
	if res.Allowed {
		t.Error("6th request within window admitted, want denied")
	}
	if res.Reason != ratelimit.ReasonLimitExceeded {
		t.Errorf("Reason = %q, want %q", res.Reason, ratelimit.ReasonLimitExceeded)
	}
	if len(w.Timestamps) != 5 {
		t.Errorf("denied request mutated window: len = %d, want 5", len(w.Timestamps))
	}
}

func TestCheckWindowSlides(t *testing.T) {
	var w ratelimit.Window

	// Fill the window at t0.
	for i := 0; i < 5; i++ {
		_, w = ratelimit.Check(w, cfg(5), t0)
	}

	// 1.05s later the t0 entries have left the exact window.
	res, _ := ratelimit.Check(w, cfg(5), t0.Add(1050*time.Millisecond))
	if !res.Allowed {
		t.Error("request after window elapsed denied, want admitted")
	}
}

func TestCheckFullResetAfterQuietSecond(t *testing.T) {
	var w ratelimit.Window
	for i := 0; i < 5; i++ {
		_, w = ratelimit.Check(w, cfg(5), t0)
	}
	// A prior denial leaves no memory once the window clears.
	_, w = ratelimit.Check(w, cfg(5), t0.Add(10*time.Millisecond))

	later := t0.Add(2 * time.Second)
	for i := 0; i < 5; i++ {
		res, nw := ratelimit.Check(w, cfg(5), later.Add(time.Duration(i)*time.Millisecond))
		if !res.Allowed {
			t.Fatalf("request %d after reset denied, want admitted", i+1)
		}
		w = nw
	}
}

func TestCheckDenialRetryAt(t *testing.T) {
	var w ratelimit.Window
	_, w = ratelimit.Check(w, cfg(1), t0)

	res, _ := ratelimit.Check(w, cfg(1), t0.Add(200*time.Millisecond))
	if res.Allowed {
		t.Fatal("second request admitted, want denied")
	}
	want := t0.Add(time.Second)
	if !res.RetryAt.Equal(want) {
		t.Errorf("RetryAt = %v, want %v", res.RetryAt, want)
	}
}

func TestCheckZeroLimitDeniesWithoutPanic(t *testing.T) {
	var w ratelimit.Window

	res, w := ratelimit.Check(w, cfg(0), t0)
	if res.Allowed {
		t.Fatal("request admitted with zero limit, want denied")
	}
	if res.Reason != ratelimit.ReasonLimitExceeded {
		t.Errorf("Reason = %q, want %q", res.Reason, ratelimit.ReasonLimitExceeded)
	}
	want := t0.Add(time.Second)
	if !res.RetryAt.Equal(want) {
		t.Errorf("RetryAt = %v, want %v", res.RetryAt, want)
	}
	if len(w.Timestamps) != 0 {
		t.Errorf("denied request mutated window: len = %d, want 0", len(w.Timestamps))
	}

	// Still denied, never admitted, on repeat checks.
	res, _ = ratelimit.Check(w, cfg(0), t0.Add(5*time.Second))
	if res.Allowed {
		t.Error("later request admitted with zero limit, want denied")
	}
}

func TestPrune(t *testing.T) {
	w := ratelimit.Window{Timestamps: []time.Time{
		t0,
		t0.Add(300 * time.Millisecond),
		t0.Add(900 * time.Millisecond),
	}}

	got := ratelimit.Prune(w, time.Second, t0.Add(1100*time.Millisecond))
	if len(got.Timestamps) != 2 {
		t.Fatalf("len = %d, want 2", len(got.Timestamps))
	}
	if !got.Timestamps[0].Equal(t0.Add(300 * time.Millisecond)) {
		t.Errorf("oldest kept = %v, want t0+300ms", got.Timestamps[0])
	}
}

func TestPruneKeepsBoundaryTimestamp(t *testing.T) {
	w := ratelimit.Window{Timestamps: []time.Time{t0}}

	// A timestamp exactly one span old is still inside the window.
	got := ratelimit.Prune(w, time.Second, t0.Add(time.Second))
	if len(got.Timestamps) != 1 {
		t.Fatalf("len = %d, want 1", len(got.Timestamps))
	}

	got = ratelimit.Prune(w, time.Second, t0.Add(time.Second+time.Nanosecond))
	if len(got.Timestamps) != 0 {
		t.Fatalf("len = %d, want 0 past the boundary", len(got.Timestamps))
	}
}

func TestIsIdle(t *testing.T) {
	if !ratelimit.IsIdle(ratelimit.Window{}, 2*time.Second, t0) {
		t.Error("empty window not idle")
	}

	w := ratelimit.Window{Timestamps: []time.Time{t0}}
	if ratelimit.IsIdle(w, 2*time.Second, t0.Add(time.Second)) {
		t.Error("recently used window reported idle")
	}
	if !ratelimit.IsIdle(w, 2*time.Second, t0.Add(3*time.Second)) {
		t.Error("stale window not reported idle")
	}
}
