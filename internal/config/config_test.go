package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	testTreasury = "hQGYkc3kq3z6kJY2coFAoBaFhCgtSTa4UyEgVrCqFL6"
	testTax      = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SOLBEACON_X402_TREASURY_WALLET", testTreasury)
	t.Setenv("SOLBEACON_X402_TAX_WALLET", testTax)
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("default address = %s", cfg.Server.Address)
	}
	if cfg.X402.BeaconPriceLamports != 1_000_000 {
		t.Errorf("default beacon price = %d", cfg.X402.BeaconPriceLamports)
	}
	if cfg.X402.TipRecipientShare != 95 {
		t.Errorf("default tip share = %d", cfg.X402.TipRecipientShare)
	}
	if cfg.X402.PaymentFreshness.Duration != time.Hour {
		t.Errorf("default freshness = %v", cfg.X402.PaymentFreshness.Duration)
	}
	if cfg.RateLimit.PerIPLimit != 20 {
		t.Errorf("default per-IP limit = %d", cfg.RateLimit.PerIPLimit)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("default storage backend = %s", cfg.Storage.Backend)
	}
	if len(cfg.X402.RecognizedNetworks) != 1 || cfg.X402.RecognizedNetworks[0] != "mainnet" {
		t.Errorf("default recognized networks = %v", cfg.X402.RecognizedNetworks)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	validEnv(t)

	content := `
server:
  address: ":9090"
x402:
  network: devnet
  rpc_url: https://api.devnet.solana.com
  beacon_price_lamports: 2000000
  payment_freshness: 30m
security:
  csrf_exempt_paths:
    - /health
rate_limit:
  per_ip_limit: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("address = %s", cfg.Server.Address)
	}
	if cfg.X402.BeaconPriceLamports != 2_000_000 {
		t.Errorf("beacon price = %d", cfg.X402.BeaconPriceLamports)
	}
	if cfg.X402.PaymentFreshness.Duration != 30*time.Minute {
		t.Errorf("freshness = %v", cfg.X402.PaymentFreshness.Duration)
	}
	if cfg.RateLimit.PerIPLimit != 5 {
		t.Errorf("per-IP limit = %d", cfg.RateLimit.PerIPLimit)
	}
	if len(cfg.X402.RecognizedNetworks) != 1 || cfg.X402.RecognizedNetworks[0] != "devnet" {
		t.Errorf("recognized networks = %v", cfg.X402.RecognizedNetworks)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("SOLBEACON_SERVER_ADDRESS", ":7777")
	t.Setenv("SOLBEACON_X402_BEACON_PRICE_LAMPORTS", "500000")
	t.Setenv("SOLBEACON_RATE_LIMIT_PER_IP_LIMIT", "3")
	t.Setenv("SOLBEACON_CSRF_EXEMPT_PATHS", "/health, /metrics")
	t.Setenv("SOLBEACON_WALLET_SEED_SECRET", "sekrit")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Address != ":7777" {
		t.Errorf("address = %s", cfg.Server.Address)
	}
	if cfg.X402.BeaconPriceLamports != 500_000 {
		t.Errorf("beacon price = %d", cfg.X402.BeaconPriceLamports)
	}
	if cfg.RateLimit.PerIPLimit != 3 {
		t.Errorf("per-IP limit = %d", cfg.RateLimit.PerIPLimit)
	}
	if len(cfg.Security.CSRFExemptPaths) != 2 || cfg.Security.CSRFExemptPaths[1] != "/metrics" {
		t.Errorf("exempt paths = %v", cfg.Security.CSRFExemptPaths)
	}
	if cfg.X402.WalletSeedSecret != "sekrit" {
		t.Error("wallet seed secret not loaded from env")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	t.Run("missing treasury wallet", func(t *testing.T) {
		t.Setenv("SOLBEACON_X402_TREASURY_WALLET", "")
		if _, err := Load(""); err == nil {
			t.Fatal("expected error for missing treasury wallet")
		}
	})

	t.Run("malformed treasury wallet", func(t *testing.T) {
		t.Setenv("SOLBEACON_X402_TREASURY_WALLET", "not-a-wallet!")
		if _, err := Load(""); err == nil {
			t.Fatal("expected error for malformed treasury wallet")
		}
	})

	t.Run("postgres backend without url", func(t *testing.T) {
		validEnv(t)
		t.Setenv("SOLBEACON_STORAGE_BACKEND", "postgres")
		if _, err := Load(""); err == nil {
			t.Fatal("expected error for postgres backend without url")
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		validEnv(t)
		t.Setenv("SOLBEACON_STORAGE_BACKEND", "cassandra")
		if _, err := Load(""); err == nil {
			t.Fatal("expected error for unknown storage backend")
		}
	})

	t.Run("tip share out of range", func(t *testing.T) {
		validEnv(t)
		t.Setenv("SOLBEACON_X402_TIP_RECIPIENT_SHARE", "100")
		if _, err := Load(""); err == nil {
			t.Fatal("expected error for tip share of 100")
		}
	})
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{`d: 5m`, 5 * time.Minute},
		{`d: 1h30m`, 90 * time.Minute},
		{`d: 45`, 45 * time.Second},
		{`d: ""`, 0},
	}

	for _, tt := range tests {
		var out struct {
			D Duration `yaml:"d"`
		}
		if err := yaml.Unmarshal([]byte(tt.raw), &out); err != nil {
			t.Errorf("unmarshal %q: %v", tt.raw, err)
			continue
		}
		if out.D.Duration != tt.want {
			t.Errorf("unmarshal %q = %v, want %v", tt.raw, out.D.Duration, tt.want)
		}
	}
}
