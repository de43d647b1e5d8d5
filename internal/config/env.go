package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides. Environment
// variables take precedence over YAML. All env vars use the SOLBEACON_
// prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "SOLBEACON_SERVER_ADDRESS")
	if v := os.Getenv("SOLBEACON_CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSAllowedOrigins = splitAndTrim(v)
	}
	setIfEnv(&c.Server.AdminAPIKey, "SOLBEACON_ADMIN_API_KEY")

	// Logging config
	setIfEnv(&c.Logging.Level, "SOLBEACON_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "SOLBEACON_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "SOLBEACON_ENVIRONMENT")

	// x402 config
	setIfEnv(&c.X402.Network, "SOLBEACON_X402_NETWORK")
	setIfEnv(&c.X402.RPCURL, "SOLBEACON_X402_RPC_URL")
	setIfEnv(&c.X402.TreasuryWallet, "SOLBEACON_X402_TREASURY_WALLET")
	setIfEnv(&c.X402.TaxWallet, "SOLBEACON_X402_TAX_WALLET")
	setUint64IfEnv(&c.X402.BeaconPriceLamports, "SOLBEACON_X402_BEACON_PRICE_LAMPORTS")
	setIntIfEnv(&c.X402.TipRecipientShare, "SOLBEACON_X402_TIP_RECIPIENT_SHARE")
	setDurationIfEnv(&c.X402.PaymentFreshness, "SOLBEACON_X402_PAYMENT_FRESHNESS")
	setDurationIfEnv(&c.X402.ReplayTTL, "SOLBEACON_X402_REPLAY_TTL")
	if v := os.Getenv("SOLBEACON_X402_RECOGNIZED_NETWORKS"); v != "" {
		c.X402.RecognizedNetworks = splitAndTrim(v)
	}
	// The wallet seed secret is deliberately env-only so it never
	// lands in a config file.
	setIfEnv(&c.X402.WalletSeedSecret, "SOLBEACON_WALLET_SEED_SECRET")

	// Security config
	setDurationIfEnv(&c.Security.CSRFTokenTTL, "SOLBEACON_CSRF_TOKEN_TTL")
	if v := os.Getenv("SOLBEACON_CSRF_EXEMPT_PATHS"); v != "" {
		c.Security.CSRFExemptPaths = splitAndTrim(v)
	}
	setDurationIfEnv(&c.Security.AuditMaxAge, "SOLBEACON_AUDIT_MAX_AGE")
	setDurationIfEnv(&c.Security.SweepInterval, "SOLBEACON_SWEEP_INTERVAL")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.GlobalEnabled, "SOLBEACON_RATE_LIMIT_GLOBAL_ENABLED")
	setIntIfEnv(&c.RateLimit.GlobalLimit, "SOLBEACON_RATE_LIMIT_GLOBAL_LIMIT")
	setDurationIfEnv(&c.RateLimit.GlobalWindow, "SOLBEACON_RATE_LIMIT_GLOBAL_WINDOW")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "SOLBEACON_RATE_LIMIT_PER_IP_ENABLED")
	setIntIfEnv(&c.RateLimit.PerIPLimit, "SOLBEACON_RATE_LIMIT_PER_IP_LIMIT")
	setDurationIfEnv(&c.RateLimit.PerIPWindow, "SOLBEACON_RATE_LIMIT_PER_IP_WINDOW")

	// Storage config
	setIfEnv(&c.Storage.Backend, "SOLBEACON_STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "SOLBEACON_STORAGE_POSTGRES_URL")
	setIfEnv(&c.Storage.MongoDBURL, "SOLBEACON_STORAGE_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "SOLBEACON_STORAGE_MONGODB_DATABASE")

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "SOLBEACON_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv sets a string to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a bool from an environment variable. Accepts "1",
// "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setIntIfEnv sets an int from an environment variable.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setUint64IfEnv sets a uint64 from an environment variable.
func setUint64IfEnv(target *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets a Duration from an environment variable, using
// time.ParseDuration for values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// splitAndTrim parses a comma separated list, dropping empty elements.
func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
