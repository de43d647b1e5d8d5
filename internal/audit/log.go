// Package audit keeps an append-only, bounded in-memory record of
// security-relevant events. Entries never hold a full wallet address,
// only a fixed-length prefix.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action classifies a security event.
type Action string

const (
	ActionRequestReceived   Action = "REQUEST_RECEIVED"
	ActionRateLimitExceeded Action = "RATE_LIMIT_EXCEEDED"
	ActionCSRFTokenInvalid  Action = "CSRF_TOKEN_INVALID"
	ActionInvalidWallet     Action = "INVALID_WALLET_ADDRESS"
	ActionPaymentVerified   Action = "PAYMENT_VERIFIED"
	ActionPaymentRejected   Action = "PAYMENT_REJECTED"
)

// MaxEntries bounds the ring; the oldest entries are dropped first.
const MaxEntries = 1000

// DefaultMaxAge is the time-based retention applied by the sweep.
const DefaultMaxAge = 24 * time.Hour

// walletPrefixLen is how much of a wallet address the log may retain.
const walletPrefixLen = 8

// Entry is one recorded security event.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	ClientIP     string         `json:"client_ip"`
	Method       string         `json:"method"`
	Endpoint     string         `json:"endpoint"`
	WalletPrefix string         `json:"wallet_prefix,omitempty"`
	Action       Action         `json:"action"`
	Details      map[string]any `json:"details,omitempty"`
}

// Filter narrows a Query; zero-valued fields match everything.
type Filter struct {
	Action       Action
	IP           string
	WalletPrefix string
}

// Log is a bounded FIFO of audit entries, safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	clock   func() time.Time
}

// NewLog creates an empty audit log.
func NewLog() *Log {
	return &Log{clock: time.Now}
}

// WithClock overrides the time source (tests).
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Record appends an event. The wallet argument may be a full address; it
// is reduced to a prefix before storage.
func (l *Log) Record(clientIP, method, endpoint, wallet string, action Action, details map[string]any) Entry {
	entry := Entry{
		ID:           uuid.NewString(),
		Timestamp:    l.clock(),
		ClientIP:     clientIP,
		Method:       method,
		Endpoint:     endpoint,
		WalletPrefix: WalletPrefix(wallet),
		Action:       action,
		Details:      details,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if excess := len(l.entries) - MaxEntries; excess > 0 {
		l.entries = append([]Entry(nil), l.entries[excess:]...)
	}
	l.mu.Unlock()

	return entry
}

// Query returns entries newest-first matching all provided filters,
// capped at limit. A non-positive limit means MaxEntries.
func (l *Log) Query(limit int, filter Filter) []Entry {
	if limit <= 0 || limit > MaxEntries {
		limit = MaxEntries
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.entries[i]
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.IP != "" && e.ClientIP != filter.IP {
			continue
		}
		if filter.WalletPrefix != "" && e.WalletPrefix != WalletPrefix(filter.WalletPrefix) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Prune removes entries older than maxAge and returns how many were
// dropped. Invoked by the hourly security sweeper.
func (l *Log) Prune(maxAge time.Duration) int {
	cutoff := l.clock().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := 0
	for idx < len(l.entries) && l.entries[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return 0
	}
	l.entries = append([]Entry(nil), l.entries[idx:]...)
	return idx
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// WalletPrefix masks a wallet address down to its loggable prefix.
func WalletPrefix(wallet string) string {
	if wallet == "" {
		return ""
	}
	if len(wallet) <= walletPrefixLen {
		return wallet
	}
	return wallet[:walletPrefixLen]
}
