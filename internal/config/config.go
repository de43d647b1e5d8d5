// Package config loads server configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment
// overrides. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with production defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		X402: X402Config{
			Network:             "mainnet-beta",
			RPCURL:              "https://api.mainnet-beta.solana.com",
			BeaconPriceLamports: 1_000_000, // 0.001 SOL
			TipRecipientShare:   95,
			PaymentFreshness:    Duration{Duration: 1 * time.Hour},
			ReplayTTL:           Duration{Duration: 1 * time.Hour},
		},
		Security: SecurityConfig{
			CSRFTokenTTL:    Duration{Duration: 1 * time.Hour},
			CSRFExemptPaths: []string{"/health", "/metrics", "/api/csrf"},
			AuditMaxAge:     Duration{Duration: 24 * time.Hour},
			SweepInterval:   Duration{Duration: 1 * time.Hour},
		},
		RateLimit: RateLimitConfig{
			// Generous global cap; the per-IP tier carries the real
			// anti-spam burden.
			GlobalEnabled: true,
			GlobalLimit:   1000,
			GlobalWindow:  Duration{Duration: 1 * time.Minute},
			PerIPEnabled:  true,
			PerIPLimit:    20,
			PerIPWindow:   Duration{Duration: 1 * time.Minute},
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			SolanaRPC: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
			Database: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 15 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
