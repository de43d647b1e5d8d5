package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	apierrors "github.com/solbeacon/server/internal/errors"
	"github.com/solbeacon/server/internal/metrics"
)

// Config holds rate limiting configuration for both tiers.
type Config struct {
	// Global rate limiting (across all clients) - coarse DoS backstop
	GlobalEnabled bool
	GlobalLimit   int
	GlobalWindow  time.Duration

	// Per-IP sliding window enforced inside the security pipeline
	PerIPLimit  int
	PerIPWindow time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// DefaultConfig returns limits matching the deployed service: a generous
// global backstop plus the 20 req/min per-IP window.
func DefaultConfig() Config {
	return Config{
		GlobalEnabled: true,
		GlobalLimit:   1000,
		GlobalWindow:  1 * time.Minute,
		PerIPLimit:    20,
		PerIPWindow:   1 * time.Minute,
	}
}

// GlobalLimiter creates the cross-client rate limiter middleware. Per-IP
// limiting happens later in the security pipeline where rejections are
// audited; this tier only bounds aggregate load.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	windowSeconds := int(cfg.GlobalWindow.Seconds())
	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Metrics != nil {
				cfg.Metrics.ObserveRateLimit("global", "all")
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
			apierrors.WriteError(w, apierrors.ErrCodeRateLimited,
				"Global rate limit exceeded. Please try again later.",
				map[string]interface{}{"retry_after_seconds": windowSeconds})
		}),
	)
}
