package storage

import (
	"context"
	"errors"
	"time"

	"github.com/solbeacon/server/internal/circuitbreaker"
	"github.com/solbeacon/server/internal/metrics"
)

// guardedStore routes every backend call through the database circuit
// breaker and records query durations.
type guardedStore struct {
	inner   Store
	breaker *circuitbreaker.Manager
	metrics *metrics.Metrics
	backend string
}

// Guard wraps a store with the database circuit breaker and query
// metrics. A nil manager returns the store unchanged.
func Guard(inner Store, breaker *circuitbreaker.Manager, m *metrics.Metrics, backend string) Store {
	if breaker == nil {
		return inner
	}
	return &guardedStore{
		inner:   inner,
		breaker: breaker,
		metrics: m,
		backend: backend,
	}
}

// domainOutcome carries an expected store result through the breaker as
// a success. ErrNotFound and ErrDuplicateSignature are answers, not
// backend failures; they must not count toward tripping.
type domainOutcome struct {
	value any
	err   error
}

func (g *guardedStore) execute(operation string, fn func() (any, error)) (any, error) {
	start := time.Now()
	out, err := g.breaker.Execute(circuitbreaker.ServiceDatabase, func() (interface{}, error) {
		v, err := fn()
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateSignature) {
			return domainOutcome{value: v, err: err}, nil
		}
		return v, err
	})
	if g.metrics != nil {
		g.metrics.ObserveDBQuery(operation, g.backend, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	if d, ok := out.(domainOutcome); ok {
		return d.value, d.err
	}
	return out, nil
}

func (g *guardedStore) SaveBeacon(ctx context.Context, beacon Beacon) error {
	_, err := g.execute("save_beacon", func() (any, error) {
		return nil, g.inner.SaveBeacon(ctx, beacon)
	})
	return err
}

func (g *guardedStore) GetBeacon(ctx context.Context, id string) (Beacon, error) {
	out, err := g.execute("get_beacon", func() (any, error) {
		return g.inner.GetBeacon(ctx, id)
	})
	if err != nil {
		return Beacon{}, err
	}
	return out.(Beacon), nil
}

func (g *guardedStore) ListBeacons(ctx context.Context, limit int) ([]Beacon, error) {
	out, err := g.execute("list_beacons", func() (any, error) {
		return g.inner.ListBeacons(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Beacon), nil
}

func (g *guardedStore) SaveTip(ctx context.Context, tip Tip) error {
	_, err := g.execute("save_tip", func() (any, error) {
		return nil, g.inner.SaveTip(ctx, tip)
	})
	return err
}

func (g *guardedStore) ListTipsForWallet(ctx context.Context, wallet string, limit int) ([]Tip, error) {
	out, err := g.execute("list_tips_for_wallet", func() (any, error) {
		return g.inner.ListTipsForWallet(ctx, wallet, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Tip), nil
}

func (g *guardedStore) ListRecentTips(ctx context.Context, limit int) ([]Tip, error) {
	out, err := g.execute("list_recent_tips", func() (any, error) {
		return g.inner.ListRecentTips(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Tip), nil
}

func (g *guardedStore) RecordPlatformTransaction(ctx context.Context, tx PlatformTransaction) error {
	_, err := g.execute("record_platform_transaction", func() (any, error) {
		return nil, g.inner.RecordPlatformTransaction(ctx, tx)
	})
	return err
}

func (g *guardedStore) ListPlatformTransactions(ctx context.Context, userWallet string, limit int) ([]PlatformTransaction, error) {
	out, err := g.execute("list_platform_transactions", func() (any, error) {
		return g.inner.ListPlatformTransactions(ctx, userWallet, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.([]PlatformTransaction), nil
}

func (g *guardedStore) HasSignatureBeenUsed(ctx context.Context, signature string) (bool, error) {
	out, err := g.execute("has_signature_been_used", func() (any, error) {
		return g.inner.HasSignatureBeenUsed(ctx, signature)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// Close bypasses the breaker: shutdown must release the connection even
// when the breaker is open.
func (g *guardedStore) Close() error {
	return g.inner.Close()
}
