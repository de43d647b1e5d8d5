package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solbeacon/server/internal/sanitize"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.X402.PaymentFreshness.Duration <= 0 {
		c.X402.PaymentFreshness = Duration{Duration: 1 * time.Hour}
	}
	if c.X402.ReplayTTL.Duration <= 0 {
		c.X402.ReplayTTL = Duration{Duration: 1 * time.Hour}
	}
	if c.X402.TipRecipientShare == 0 {
		c.X402.TipRecipientShare = 95
	}
	if c.Security.CSRFTokenTTL.Duration <= 0 {
		c.Security.CSRFTokenTTL = Duration{Duration: 1 * time.Hour}
	}
	if c.Security.AuditMaxAge.Duration <= 0 {
		c.Security.AuditMaxAge = Duration{Duration: 24 * time.Hour}
	}
	if c.Security.SweepInterval.Duration <= 0 {
		c.Security.SweepInterval = Duration{Duration: 1 * time.Hour}
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}

	// The network allow-list defaults to substrings that identify the
	// configured cluster in well-known RPC endpoint URLs.
	if len(c.X402.RecognizedNetworks) == 0 {
		switch c.X402.Network {
		case "devnet":
			c.X402.RecognizedNetworks = []string{"devnet"}
		case "testnet":
			c.X402.RecognizedNetworks = []string{"testnet"}
		default:
			c.X402.RecognizedNetworks = []string{"mainnet"}
		}
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	if c.X402.RPCURL == "" {
		errs = append(errs, "x402.rpc_url is required")
	}
	if c.X402.TreasuryWallet == "" {
		errs = append(errs, "x402.treasury_wallet is required")
	} else if !sanitize.ValidWalletAddress(c.X402.TreasuryWallet) {
		errs = append(errs, fmt.Sprintf("x402.treasury_wallet %q is not a valid Solana address", c.X402.TreasuryWallet))
	}
	if c.X402.TaxWallet != "" && !sanitize.ValidWalletAddress(c.X402.TaxWallet) {
		errs = append(errs, fmt.Sprintf("x402.tax_wallet %q is not a valid Solana address", c.X402.TaxWallet))
	}
	if c.X402.BeaconPriceLamports == 0 {
		errs = append(errs, "x402.beacon_price_lamports must be greater than zero")
	}
	if c.X402.TipRecipientShare <= 0 || c.X402.TipRecipientShare >= 100 {
		errs = append(errs, fmt.Sprintf("x402.tip_recipient_share must be between 1 and 99, got %d", c.X402.TipRecipientShare))
	}

	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			errs = append(errs, "storage.postgres_url is required when backend is 'postgres'")
		}
	case "mongodb":
		if c.Storage.MongoDBURL == "" {
			errs = append(errs, "storage.mongodb_url is required when backend is 'mongodb'")
		}
		if c.Storage.MongoDBDatabase == "" {
			errs = append(errs, "storage.mongodb_database is required when backend is 'mongodb'")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend must be 'memory', 'postgres', or 'mongodb', got %q", c.Storage.Backend))
	}

	if c.RateLimit.PerIPEnabled && c.RateLimit.PerIPLimit <= 0 {
		errs = append(errs, "rate_limit.per_ip_limit must be positive when per-IP limiting is enabled")
	}
	if c.RateLimit.GlobalEnabled && c.RateLimit.GlobalLimit <= 0 {
		errs = append(errs, "rate_limit.global_limit must be positive when global limiting is enabled")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a
// database handle, filling in defaults for unset values.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
