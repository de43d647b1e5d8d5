package security

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solbeacon/server/internal/audit"
	"github.com/solbeacon/server/internal/csrf"
	"github.com/solbeacon/server/internal/metrics"
	"github.com/solbeacon/server/internal/ratelimit"
	"github.com/solbeacon/server/pkg/x402"
)

// Sweeper periodically prunes expired state from the security stores so
// pruning cost never lands on a request path.
type Sweeper struct {
	Interval    time.Duration
	AuditMaxAge time.Duration

	Limiter *ratelimit.Limiter
	CSRF    *csrf.Store
	Audit   *audit.Log
	Replay  *x402.ReplayCache
	Metrics *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

// NewSweeper creates a sweeper over the shared stores.
func NewSweeper(interval, auditMaxAge time.Duration, limiter *ratelimit.Limiter, store *csrf.Store, log *audit.Log, replay *x402.ReplayCache, m *metrics.Metrics) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if auditMaxAge <= 0 {
		auditMaxAge = audit.DefaultMaxAge
	}
	return &Sweeper{
		Interval:    interval,
		AuditMaxAge: auditMaxAge,
		Limiter:     limiter,
		CSRF:        store,
		Audit:       log,
		Replay:      replay,
		Metrics:     m,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce prunes every store and logs the totals.
func (s *Sweeper) sweepOnce() {
	start := time.Now()

	windows := 0
	if s.Limiter != nil {
		windows = s.Limiter.Sweep()
	}
	tokens := s.CSRF.Sweep()
	entries := s.Audit.Prune(s.AuditMaxAge)
	proofs := s.Replay.Sweep()

	elapsed := time.Since(start)
	if s.Metrics != nil {
		s.Metrics.ObserveSecuritySweep(elapsed)
	}
	log.Debug().
		Int("rate_windows", windows).
		Int("csrf_tokens", tokens).
		Int("audit_entries", entries).
		Int("replay_proofs", proofs).
		Dur("duration", elapsed).
		Msg("security.sweep_completed")
}

// Close stops the sweep loop. Implements io.Closer for the lifecycle
// manager.
func (s *Sweeper) Close() error {
	close(s.stop)
	<-s.done
	return nil
}
