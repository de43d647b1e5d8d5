package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or
// bare numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits
// human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and
// environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	X402           X402Config           `yaml:"x402"`
	Security       SecurityConfig       `yaml:"security"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Storage        StorageConfig        `yaml:"storage"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	AdminAPIKey        string   `yaml:"-"` // Guards /metrics and /api/audit; loaded from env only
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// X402Config holds payment verification and Solana configuration.
type X402Config struct {
	Network             string   `yaml:"network"`               // mainnet-beta, devnet, testnet
	RPCURL              string   `yaml:"rpc_url"`               // Solana RPC endpoint
	TreasuryWallet      string   `yaml:"treasury_wallet"`       // Recipient of beacon payments
	TaxWallet           string   `yaml:"tax_wallet"`            // Recipient of the platform fee share of tips
	BeaconPriceLamports uint64   `yaml:"beacon_price_lamports"` // Price of one beacon post
	TipRecipientShare   int      `yaml:"tip_recipient_share"`   // Percent of a tip paid to the recipient
	PaymentFreshness    Duration `yaml:"payment_freshness"`     // Max age of an on-chain payment
	ReplayTTL           Duration `yaml:"replay_ttl"`            // How long used proof fingerprints are retained
	RecognizedNetworks  []string `yaml:"recognized_networks"`   // RPC endpoint substrings accepted as the configured network
	WalletSeedSecret    string   `yaml:"-"`                     // Loaded from env, never from file
}

// SecurityConfig holds the request security pipeline configuration.
type SecurityConfig struct {
	CSRFTokenTTL    Duration `yaml:"csrf_token_ttl"`    // Token lifetime (default: 1h)
	CSRFExemptPaths []string `yaml:"csrf_exempt_paths"` // Path substrings skipped by CSRF validation
	AuditMaxAge     Duration `yaml:"audit_max_age"`     // Time-based audit retention (default: 24h)
	SweepInterval   Duration `yaml:"sweep_interval"`    // How often expired state is swept (default: 1h)
}

// RateLimitConfig holds rate limiting configuration. The global tier
// protects the whole server; the per-IP tier stops individual abusers.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`

	PerIPEnabled bool     `yaml:"per_ip_enabled"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	Backend         string             `yaml:"backend"`          // "memory", "postgres", or "mongodb"
	PostgresURL     string             `yaml:"postgres_url"`     // PostgreSQL connection string
	MongoDBURL      string             `yaml:"mongodb_url"`      // MongoDB connection string
	MongoDBDatabase string             `yaml:"mongodb_database"` // MongoDB database name
	PostgresPool    PostgresPoolConfig `yaml:"postgres_pool"`    // PostgreSQL connection pool settings
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // default: 25
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // default: 5
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // default: 5m
}

// CircuitBreakerConfig holds circuit breaker configuration for external
// services.
type CircuitBreakerConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	SolanaRPC BreakerServiceConfig `yaml:"solana_rpc"`
	Database  BreakerServiceConfig `yaml:"database"`
}

// BreakerServiceConfig configures a circuit breaker for one external
// service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 30s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // Failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // Minimum requests before checking ratio (default: 10)
}
