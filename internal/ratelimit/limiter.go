package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window request counter keyed by client identifier
// (typically the remote IP). It is a best-effort in-memory defense: state
// does not survive restarts and no cross-process coordination happens.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	window  time.Duration
	cap     int
	clock   func() time.Time
}

// NewLimiter creates a sliding-window limiter allowing cap requests per
// key within the given window.
func NewLimiter(cap int, window time.Duration) *Limiter {
	return &Limiter{
		windows: make(map[string][]time.Time),
		window:  window,
		cap:     cap,
		clock:   time.Now,
	}
}

// WithClock overrides the time source (tests).
func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	l.clock = clock
	return l
}

// Allow reports whether a request from key may proceed. The prune, count
// and append happen under one lock so concurrent calls for the same key
// never lose increments. A rejected request is not recorded.
func (l *Limiter) Allow(key string) bool {
	now := l.clock()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := pruneBefore(l.windows[key], cutoff)
	if len(kept) >= l.cap {
		l.windows[key] = kept
		return false
	}
	l.windows[key] = append(kept, now)
	return true
}

// RetryAfter returns the client-facing backoff hint in seconds.
func (l *Limiter) RetryAfter() int {
	return int(l.window.Seconds())
}

// Sweep drops per-key entries whose windows contain only expired
// timestamps, bounding memory. Called from the periodic security sweeper.
func (l *Limiter) Sweep() int {
	now := l.clock()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, stamps := range l.windows {
		kept := pruneBefore(stamps, cutoff)
		if len(kept) == 0 {
			delete(l.windows, key)
			removed++
			continue
		}
		l.windows[key] = kept
	}
	return removed
}

// Len returns the number of tracked keys (tests and metrics).
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// pruneBefore drops timestamps at or before cutoff. Timestamps are
// appended in order, so the first kept index is a prefix scan.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[idx:]...)
}
