// Package httpserver exposes the pay-to-post feed API: payment-gated
// writes verified through the x402 flow, public reads, and the
// operational endpoints.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/solbeacon/server/internal/config"
	"github.com/solbeacon/server/internal/logger"
	"github.com/solbeacon/server/internal/metrics"
	"github.com/solbeacon/server/internal/ratelimit"
	"github.com/solbeacon/server/internal/security"
	platformwallet "github.com/solbeacon/server/internal/solana"
	"github.com/solbeacon/server/internal/storage"
	"github.com/solbeacon/server/pkg/x402"
)

var serverStartTime = time.Now()

// paymentVerifier is the slice of the x402 verifier the handlers use.
type paymentVerifier interface {
	Verify(ctx context.Context, proof *x402.PaymentProof, req x402.Requirement) (*x402.VerificationResult, error)
	VerifySplit(ctx context.Context, proof *x402.PaymentProof, payouts []x402.Requirement) (*x402.VerificationResult, error)
}

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg      *config.Config
	verifier paymentVerifier
	store    storage.Store
	deriver  *platformwallet.WalletDeriver
	pipeline *security.Pipeline
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New builds the HTTP server with the configured router.
func New(cfg *config.Config, verifier paymentVerifier, store storage.Store, deriver *platformwallet.WalletDeriver, pipeline *security.Pipeline, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:      cfg,
			verifier: verifier,
			store:    store,
			deriver:  deriver,
			pipeline: pipeline,
			metrics:  metricsCollector,
			logger:   appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	s.configureRouter(router)
	return s
}

func (s *Server) configureRouter(router chi.Router) {
	cfg := s.cfg

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"X-CSRF-Token"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(s.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(metricsMiddleware(s.metrics))

	// Global rate limit tier. The audited per-IP window runs inside the
	// security pipeline below.
	router.Use(ratelimit.GlobalLimiter(ratelimit.Config{
		GlobalEnabled: cfg.RateLimit.GlobalEnabled,
		GlobalLimit:   cfg.RateLimit.GlobalLimit,
		GlobalWindow:  cfg.RateLimit.GlobalWindow.Duration,
		Metrics:       s.metrics,
	}))

	// Lightweight endpoints stay outside the security pipeline so health
	// probes and scrapers are never charged against the per-IP window.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/health", s.health)
		r.With(adminAuth(cfg.Server.AdminAPIKey)).Handle("/metrics", promhttp.Handler())
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(s.pipeline.Handler)

		r.Post("/api/beacons", s.createBeacon)
		r.Get("/api/beacons", s.listBeacons)
		r.Get("/api/beacons/{id}", s.getBeacon)

		r.Post("/api/tips", s.createTip)
		r.Get("/api/tips/recent", s.recentTips)

		r.Post("/api/platform/deposit", s.platformDeposit)
		r.Get("/api/platform/transactions", s.platformTransactions)

		r.Get("/api/csrf", s.csrfToken)
		r.With(adminAuth(cfg.Server.AdminAPIKey)).Get("/api/audit", s.auditQuery)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
