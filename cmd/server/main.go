package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/solbeacon/server/internal/audit"
	"github.com/solbeacon/server/internal/chain"
	"github.com/solbeacon/server/internal/circuitbreaker"
	"github.com/solbeacon/server/internal/config"
	"github.com/solbeacon/server/internal/csrf"
	"github.com/solbeacon/server/internal/httpserver"
	"github.com/solbeacon/server/internal/lifecycle"
	"github.com/solbeacon/server/internal/logger"
	"github.com/solbeacon/server/internal/metrics"
	"github.com/solbeacon/server/internal/ratelimit"
	"github.com/solbeacon/server/internal/security"
	platformwallet "github.com/solbeacon/server/internal/solana"
	"github.com/solbeacon/server/internal/storage"
	"github.com/solbeacon/server/pkg/x402"
)

func breakerConfig(c config.BreakerServiceConfig) circuitbreaker.BreakerConfig {
	return circuitbreaker.BreakerConfig{
		MaxRequests:         c.MaxRequests,
		Interval:            c.Interval.Duration,
		Timeout:             c.Timeout.Duration,
		ConsecutiveFailures: c.ConsecutiveFailures,
		FailureRatio:        c.FailureRatio,
		MinRequests:         c.MinRequests,
	}
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("main.config_load_failed")
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Environment: cfg.Logging.Environment,
	})

	resources := lifecycle.NewManager()
	defer func() {
		if err := resources.Close(); err != nil {
			appLogger.Error().Err(err).Msg("main.resource_cleanup_failed")
		}
	}()

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		Enabled:   cfg.CircuitBreaker.Enabled,
		SolanaRPC: breakerConfig(cfg.CircuitBreaker.SolanaRPC),
		Database:  breakerConfig(cfg.CircuitBreaker.Database),
	})

	reader, err := chain.NewSolanaReader(cfg.X402.RPCURL)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("main.rpc_init_failed")
	}
	reader = reader.
		WithBreakers(breakers).
		WithMetrics(metricsCollector, cfg.X402.Network)

	store, err := storage.NewStore(storage.StoreConfig{
		Backend:         cfg.Storage.Backend,
		PostgresURL:     cfg.Storage.PostgresURL,
		MongoDBURL:      cfg.Storage.MongoDBURL,
		MongoDBDatabase: cfg.Storage.MongoDBDatabase,
		PostgresPool: storage.PoolSettings{
			MaxOpenConns:    cfg.Storage.PostgresPool.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.PostgresPool.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.PostgresPool.ConnMaxLifetime.Duration,
		},
	})
	if err != nil {
		appLogger.Fatal().Err(err).Msg("main.storage_init_failed")
	}
	resources.Register("storage", store)
	store = storage.Guard(store, breakers, metricsCollector, cfg.Storage.Backend)

	replay := x402.NewReplayCache(cfg.X402.ReplayTTL.Duration)
	verifier := x402.NewVerifier(reader, replay).
		WithNetworks(cfg.X402.RecognizedNetworks).
		WithFreshness(cfg.X402.PaymentFreshness.Duration)

	var deriver *platformwallet.WalletDeriver
	if cfg.X402.WalletSeedSecret != "" {
		deriver, err = platformwallet.NewWalletDeriver(cfg.X402.WalletSeedSecret)
		if err != nil {
			appLogger.Fatal().Err(err).Msg("main.wallet_deriver_init_failed")
		}
	} else {
		appLogger.Warn().Msg("main.wallet_seed_secret_missing")
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.PerIPEnabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimit.PerIPLimit, cfg.RateLimit.PerIPWindow.Duration)
	}
	csrfStore := csrf.NewStore(cfg.Security.CSRFTokenTTL.Duration)
	auditLog := audit.NewLog()
	pipeline := security.NewPipeline(limiter, csrfStore, auditLog,
		metricsCollector, cfg.Security.CSRFExemptPaths)

	sweeper := security.NewSweeper(
		cfg.Security.SweepInterval.Duration,
		cfg.Security.AuditMaxAge.Duration,
		limiter, csrfStore, auditLog, replay, metricsCollector,
	)
	sweeper.Start()
	resources.Register("sweeper", sweeper)

	server := httpserver.New(cfg, verifier, store, deriver, pipeline,
		metricsCollector, appLogger)

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info().
			Str("address", cfg.Server.Address).
			Str("network", cfg.X402.Network).
			Str("storage", cfg.Storage.Backend).
			Msg("main.server_starting")
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		appLogger.Fatal().Err(err).Msg("main.server_failed")
	case sig := <-shutdown:
		appLogger.Info().Str("signal", sig.String()).Msg("main.shutdown_started")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error().Err(err).Msg("main.shutdown_failed")
		}
	}
}
