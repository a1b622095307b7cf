// Package ratelimit provides the pure sliding-window admission algorithm.
// All functions are deterministic - same input always produces same output.
package ratelimit

import "time"

// Window holds the timestamps of admitted requests inside the trailing
// span for one identity (value type). Timestamps are ordered oldest first.
type Window struct {
	Timestamps []time.Time
}

// Config holds sliding-window configuration (value type).
type Config struct {
	Limit int           // Admitted requests per span
	Span  time.Duration // Trailing window length
}

// Result represents the outcome of an admission check (value type).
type Result struct {
	Allowed   bool
	Remaining int       // Admissions left in the current window
	RetryAt   time.Time // When the oldest counted request leaves the window (denials only)
	Reason    string    // If not allowed, why
}

// Reasons for denial
const (
	ReasonLimitExceeded = "rate_limit_exceeded"
)

// Check performs a sliding-window admission check.
// This is a PURE function - no side effects.
//
// The window is exact: only timestamps within [now-span, now] count. A
// denied request does not consume a slot; the window state after a denial
// is the pruned window, unchanged otherwise.
//
// A Limit of zero denies every request. The window is empty in that case,
// so RetryAt is a full span out rather than derived from an oldest entry.
//
// Returns the result and the new window state (caller must persist).
func Check(w Window, cfg Config, now time.Time) (Result, Window) {
	pruned := Prune(w, cfg.Span, now)

	if len(pruned.Timestamps) >= cfg.Limit {
		retryAt := now.Add(cfg.Span)
		if len(pruned.Timestamps) > 0 {
			retryAt = pruned.Timestamps[0].Add(cfg.Span)
		}
		return Result{
			Allowed:   false,
			Remaining: 0,
			RetryAt:   retryAt,
			Reason:    ReasonLimitExceeded,
		}, pruned
	}

	pruned.Timestamps = append(pruned.Timestamps, now)
	return Result{
		Allowed:   true,
		Remaining: cfg.Limit - len(pruned.Timestamps),
	}, pruned
}

// Prune drops timestamps that have left the trailing span.
// This is a PURE function.
func Prune(w Window, span time.Duration, now time.Time) Window {
	cutoff := now.Add(-span)
	i := 0
	for i < len(w.Timestamps) && w.Timestamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return w
	}
	kept := make([]time.Time, len(w.Timestamps)-i)
	copy(kept, w.Timestamps[i:])
	return Window{Timestamps: kept}
}

// IsIdle reports whether the window has seen no requests since the cutoff.
// Used by stores to evict inactive identities.
// This is a PURE function.
func IsIdle(w Window, idle time.Duration, now time.Time) bool {
	n := len(w.Timestamps)
	if n == 0 {
		return true
	}
	return w.Timestamps[n-1].Before(now.Add(-idle))
}
