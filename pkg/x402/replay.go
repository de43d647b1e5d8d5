package x402

import (
	"sync"
	"time"
)

// DefaultReplayTTL matches the transaction freshness window: once a
// transaction is too old to verify, its fingerprint no longer needs to
// be remembered.
const DefaultReplayTTL = 1 * time.Hour

type replayEntry struct {
	firstSeen time.Time
	amountSOL float64
	committed bool
}

// ReplayCache tracks consumed proof fingerprints. A fingerprint makes
// at most one absent-to-present transition: Reserve claims it
// atomically, Commit finalizes it after successful verification, and
// Release returns it only when verification failed before commit.
type ReplayCache struct {
	mu      sync.Mutex
	entries map[string]replayEntry
	ttl     time.Duration
	clock   func() time.Time
}

// NewReplayCache creates a cache with the given TTL. A non-positive
// TTL uses DefaultReplayTTL.
func NewReplayCache(ttl time.Duration) *ReplayCache {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &ReplayCache{
		entries: make(map[string]replayEntry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// WithClock overrides the time source (tests).
func (c *ReplayCache) WithClock(clock func() time.Time) *ReplayCache {
	c.clock = clock
	return c
}

// Reserve atomically claims a fingerprint. It returns false when the
// fingerprint is already present and unexpired, which means replay.
func (c *ReplayCache) Reserve(fingerprint string) bool {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[fingerprint]; ok {
		if now.Sub(entry.firstSeen) < c.ttl {
			return false
		}
		// Expired entries are reclaimable; the matching transaction
		// is past the freshness window and can no longer verify.
		delete(c.entries, fingerprint)
	}
	c.entries[fingerprint] = replayEntry{firstSeen: now}
	return true
}

// Commit finalizes a reserved fingerprint with the confirmed amount.
func (c *ReplayCache) Commit(fingerprint string, amountSOL float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return
	}
	entry.amountSOL = amountSOL
	entry.committed = true
	c.entries[fingerprint] = entry
}

// Release drops an uncommitted reservation so the client may retry
// after a verification failure. Committed fingerprints stay consumed.
func (c *ReplayCache) Release(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[fingerprint]; ok && !entry.committed {
		delete(c.entries, fingerprint)
	}
}

// Seen reports whether a fingerprint is currently held.
func (c *ReplayCache) Seen(fingerprint string) bool {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	return ok && now.Sub(entry.firstSeen) < c.ttl
}

// Sweep removes expired fingerprints and returns how many were
// dropped. Invoked by the hourly security sweeper.
func (c *ReplayCache) Sweep() int {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for fp, entry := range c.entries {
		if now.Sub(entry.firstSeen) >= c.ttl {
			delete(c.entries, fp)
			removed++
		}
	}
	return removed
}

// Len returns the number of held fingerprints.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
