// Package storage persists verified feed activity. The in-memory
// replay cache is authoritative during a process lifetime; the store's
// signature index is the durable backstop across restarts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a requested entity is missing from the
// store.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateSignature is returned when a transaction signature was
// already recorded for any entity.
var ErrDuplicateSignature = errors.New("storage: signature already used")

// Store captures the persistence requirements for the feed.
type Store interface {
	// Beacon operations. SaveBeacon fails with ErrDuplicateSignature
	// when the payment signature was already recorded anywhere.
	SaveBeacon(ctx context.Context, beacon Beacon) error
	GetBeacon(ctx context.Context, id string) (Beacon, error)
	ListBeacons(ctx context.Context, limit int) ([]Beacon, error)

	// Tip operations.
	SaveTip(ctx context.Context, tip Tip) error
	ListTipsForWallet(ctx context.Context, wallet string, limit int) ([]Tip, error)
	ListRecentTips(ctx context.Context, limit int) ([]Tip, error)

	// Platform wallet operations.
	RecordPlatformTransaction(ctx context.Context, tx PlatformTransaction) error
	ListPlatformTransactions(ctx context.Context, userWallet string, limit int) ([]PlatformTransaction, error)

	// HasSignatureBeenUsed reports whether a payment signature appears
	// on any stored record. Used as the durable replay backstop.
	HasSignatureBeenUsed(ctx context.Context, signature string) (bool, error)

	Close() error
}

// StoreConfig holds storage backend configuration.
type StoreConfig struct {
	Backend         string // "memory", "postgres", or "mongodb"
	PostgresURL     string
	MongoDBURL      string
	MongoDBDatabase string
	PostgresPool    PoolSettings
}

// PoolSettings mirrors the config package's pool knobs without creating
// an import cycle.
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a Store instance based on the provided configuration.
func NewStore(cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		// Memory loses the signature backstop on restart. Fine for
		// development, not for production.
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires postgres_url")
		}
		return NewPostgresStore(cfg.PostgresURL, cfg.PostgresPool)
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_url")
		}
		if cfg.MongoDBDatabase == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_database")
		}
		return NewMongoDBStore(cfg.MongoDBURL, cfg.MongoDBDatabase)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// MemoryStore is an in-memory Store implementation for tests and
// single-instance deployments.
type MemoryStore struct {
	mu             sync.RWMutex
	beacons        map[string]Beacon
	tips           map[string]Tip
	platformTxs    map[string]PlatformTransaction
	usedSignatures map[string]struct{}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		beacons:        make(map[string]Beacon),
		tips:           make(map[string]Tip),
		platformTxs:    make(map[string]PlatformTransaction),
		usedSignatures: make(map[string]struct{}),
	}
}

// SaveBeacon persists a beacon, enforcing signature uniqueness.
func (m *MemoryStore) SaveBeacon(_ context.Context, beacon Beacon) error {
	if beacon.ID == "" {
		return errors.New("storage: beacon id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, used := m.usedSignatures[beacon.Signature]; used {
		return ErrDuplicateSignature
	}
	m.beacons[beacon.ID] = beacon
	m.usedSignatures[beacon.Signature] = struct{}{}
	return nil
}

// GetBeacon retrieves a beacon by ID.
func (m *MemoryStore) GetBeacon(_ context.Context, id string) (Beacon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	beacon, ok := m.beacons[id]
	if !ok {
		return Beacon{}, ErrNotFound
	}
	return beacon, nil
}

// ListBeacons returns beacons newest-first, capped at limit.
func (m *MemoryStore) ListBeacons(_ context.Context, limit int) ([]Beacon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Beacon, 0, len(m.beacons))
	for _, b := range m.beacons {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveTip persists a tip, enforcing signature uniqueness.
func (m *MemoryStore) SaveTip(_ context.Context, tip Tip) error {
	if tip.ID == "" {
		return errors.New("storage: tip id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, used := m.usedSignatures[tip.Signature]; used {
		return ErrDuplicateSignature
	}
	m.tips[tip.ID] = tip
	m.usedSignatures[tip.Signature] = struct{}{}
	return nil
}

// ListTipsForWallet returns tips sent to or from the wallet,
// newest-first, capped at limit.
func (m *MemoryStore) ListTipsForWallet(_ context.Context, wallet string, limit int) ([]Tip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Tip
	for _, t := range m.tips {
		if t.FromWallet == wallet || t.ToWallet == wallet {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListRecentTips returns the latest tips across all wallets,
// newest-first, capped at limit.
func (m *MemoryStore) ListRecentTips(_ context.Context, limit int) ([]Tip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Tip, 0, len(m.tips))
	for _, t := range m.tips {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordPlatformTransaction persists a platform wallet movement.
func (m *MemoryStore) RecordPlatformTransaction(_ context.Context, tx PlatformTransaction) error {
	if tx.ID == "" {
		return errors.New("storage: platform transaction id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, used := m.usedSignatures[tx.Signature]; used {
		return ErrDuplicateSignature
	}
	m.platformTxs[tx.ID] = tx
	m.usedSignatures[tx.Signature] = struct{}{}
	return nil
}

// ListPlatformTransactions returns a user's platform wallet history,
// newest-first, capped at limit.
func (m *MemoryStore) ListPlatformTransactions(_ context.Context, userWallet string, limit int) ([]PlatformTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []PlatformTransaction
	for _, tx := range m.platformTxs {
		if tx.UserWallet == userWallet {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HasSignatureBeenUsed reports whether the signature was recorded for
// any entity.
func (m *MemoryStore) HasSignatureBeenUsed(_ context.Context, signature string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, used := m.usedSignatures[signature]
	return used, nil
}

// Close implements the Store interface.
func (m *MemoryStore) Close() error {
	return nil
}
