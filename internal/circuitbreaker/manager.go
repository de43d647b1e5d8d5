// Package circuitbreaker isolates external dependencies behind
// per-service circuit breakers so one failing backend cannot drag the
// whole request pipeline down with it.
package circuitbreaker

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ServiceType identifies an external service with its own breaker.
type ServiceType string

const (
	ServiceSolanaRPC ServiceType = "solana_rpc"
	ServiceDatabase  ServiceType = "database"
)

// BreakerConfig configures a single circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval is the cyclic period in closed state after which the
	// internal counts reset. Zero means never.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// Trip thresholds. ConsecutiveFailures trips on a streak;
	// FailureRatio trips on the failure rate once MinRequests have
	// been observed.
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// Config holds breaker configuration for all services.
type Config struct {
	Enabled   bool
	SolanaRPC BreakerConfig
	Database  BreakerConfig
}

// DefaultConfig returns the breaker thresholds used in production.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		SolanaRPC: BreakerConfig{
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         10,
		},
		Database: BreakerConfig{
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             15 * time.Second,
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         10,
		},
	}
}

// Manager holds one breaker per external service. Each service gets its
// own breaker so failures stay within their bulkhead.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	config   Config
}

// NewManager creates a manager with the given configuration. When
// disabled, Execute passes calls straight through.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		config:   cfg,
	}
	if !cfg.Enabled {
		return m
	}

	m.breakers[ServiceSolanaRPC] = gobreaker.NewCircuitBreaker(toSettings(string(ServiceSolanaRPC), cfg.SolanaRPC))
	m.breakers[ServiceDatabase] = gobreaker.NewCircuitBreaker(toSettings(string(ServiceDatabase), cfg.Database))
	return m
}

// Execute runs fn under the breaker for the named service. Services
// without a configured breaker pass through.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if !m.config.Enabled {
		return fn()
	}
	breaker, ok := m.breakers[service]
	if !ok {
		return fn()
	}
	return breaker.Execute(fn)
}

// State returns the breaker state for health reporting.
func (m *Manager) State(service ServiceType) string {
	if !m.config.Enabled {
		return "disabled"
	}
	breaker, ok := m.breakers[service]
	if !ok {
		return "not_configured"
	}
	return breaker.State().String()
}

// Counts mirrors gobreaker's counters without exposing its types.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Counts returns the current counters for a service's breaker.
func (m *Manager) Counts(service ServiceType) Counts {
	if !m.config.Enabled {
		return Counts{}
	}
	breaker, ok := m.breakers[service]
	if !ok {
		return Counts{}
	}
	c := breaker.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

func toSettings(name string, cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 && counts.Requests >= cfg.MinRequests {
				rate := float64(counts.TotalFailures) / float64(counts.Requests)
				if rate >= cfg.FailureRatio {
					return true
				}
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}
}
