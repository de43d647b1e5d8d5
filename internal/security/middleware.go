// Package security chains the request security stages that every API
// request passes through before reaching a handler: per-IP rate
// limiting, input sanitization, CSRF validation, wallet format checks,
// and audit recording.
package security

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/solbeacon/server/internal/audit"
	"github.com/solbeacon/server/internal/csrf"
	apierrors "github.com/solbeacon/server/internal/errors"
	"github.com/solbeacon/server/internal/logger"
	"github.com/solbeacon/server/internal/metrics"
	"github.com/solbeacon/server/internal/ratelimit"
	"github.com/solbeacon/server/internal/sanitize"
)

// maxBodyBytes bounds request bodies before they are parsed.
const maxBodyBytes = 64 * 1024

// Pipeline holds the shared security state and wraps handlers with the
// ordered stage chain.
type Pipeline struct {
	Limiter     *ratelimit.Limiter
	CSRF        *csrf.Store
	Audit       *audit.Log
	Metrics     *metrics.Metrics
	ExemptPaths []string
}

// NewPipeline creates a pipeline around the shared security stores.
func NewPipeline(limiter *ratelimit.Limiter, store *csrf.Store, log *audit.Log, m *metrics.Metrics, exempt []string) *Pipeline {
	return &Pipeline{
		Limiter:     limiter,
		CSRF:        store,
		Audit:       log,
		Metrics:     m,
		ExemptPaths: exempt,
	}
}

// Handler wraps next with the security stage chain. Stage order is
// fixed: rate limit, sanitize, CSRF, wallet format, audit, context,
// token issuance.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		reqLog := logger.FromContext(r.Context())

		// Per-IP rate limit. A nil limiter means the tier is disabled.
		if p.Limiter != nil && !p.Limiter.Allow(ip) {
			p.Audit.Record(ip, r.Method, r.URL.Path, "", audit.ActionRateLimitExceeded, nil)
			if p.Metrics != nil {
				p.Metrics.ObserveRateLimit("per_ip", ip)
				p.Metrics.ObserveAuditEntry(string(audit.ActionRateLimitExceeded))
			}
			reqLog.Warn().Str("client_ip", ip).Msg("security.rate_limited")
			w.Header().Set("Retry-After", strconv.Itoa(p.Limiter.RetryAfter()))
			apierrors.WriteSimpleError(w, apierrors.ErrCodeRateLimited,
				"Too many requests. Please slow down.")
			return
		}

		// Sanitize query parameters in place.
		query := r.URL.Query()
		changed := false
		for key, values := range query {
			for i, value := range values {
				cleaned := sanitize.Clean(value)
				if cleaned != value {
					values[i] = cleaned
					changed = true
				}
			}
			query[key] = values
		}
		if changed {
			r.URL.RawQuery = query.Encode()
		}

		// Sanitize JSON body fields in place.
		body, err := p.sanitizeBody(r)
		if err != nil {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField,
				"Request body must be valid JSON.")
			return
		}

		// CSRF for state-changing methods.
		csrfVerified := false
		if isStateChanging(r.Method) && !p.exempt(r.URL.Path) {
			token := csrf.FromRequest(r)
			if token == "" || !p.CSRF.Verify(token) {
				reason := "invalid_token"
				if token == "" {
					reason = "missing_token"
				}
				p.Audit.Record(ip, r.Method, r.URL.Path, "", audit.ActionCSRFTokenInvalid,
					map[string]any{"reason": reason})
				if p.Metrics != nil {
					p.Metrics.ObserveCSRFRejection(reason)
					p.Metrics.ObserveAuditEntry(string(audit.ActionCSRFTokenInvalid))
				}
				reqLog.Warn().Str("client_ip", ip).Str("reason", reason).Msg("security.csrf_rejected")
				apierrors.WriteSimpleError(w, apierrors.ErrCodeCSRFInvalid,
					"Missing or invalid CSRF token.")
				return
			}
			csrfVerified = true
		}

		// Wallet format validation on every wallet-bearing field.
		wallet, ok := p.checkWallets(body, r)
		if !ok {
			p.Audit.Record(ip, r.Method, r.URL.Path, wallet, audit.ActionInvalidWallet, nil)
			if p.Metrics != nil {
				p.Metrics.ObserveInvalidWallet()
				p.Metrics.ObserveAuditEntry(string(audit.ActionInvalidWallet))
			}
			apierrors.WriteSimpleError(w, apierrors.ErrCodeBadWalletFormat,
				"Wallet address is not a valid Solana address.")
			return
		}

		p.Audit.Record(ip, r.Method, r.URL.Path, wallet, audit.ActionRequestReceived, nil)
		if p.Metrics != nil {
			p.Metrics.ObserveAuditEntry(string(audit.ActionRequestReceived))
		}

		sc := &Context{
			ClientIP:     ip,
			Wallet:       wallet,
			CSRFVerified: csrfVerified,
			ReceivedAt:   time.Now(),
		}
		r = r.WithContext(WithContext(r.Context(), sc))

		// Safe methods get a fresh token for the next state-changing
		// request.
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			csrf.Attach(w, p.CSRF.Issue())
		}

		next.ServeHTTP(w, r)
	})
}

// sanitizeBody cleans string fields of a JSON object body and restores
// the body for the handler. Non-JSON and empty bodies pass through
// untouched; a JSON content type that fails to parse is an error.
func (p *Pipeline) sanitizeBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	fields = sanitize.CleanMap(fields)
	cleaned, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewReader(cleaned))
	r.ContentLength = int64(len(cleaned))
	return fields, nil
}

// walletFields are the body keys that must hold valid addresses when
// present.
var walletFields = []string{"wallet", "from_wallet", "to_wallet", "recipient", "user_wallet"}

// checkWallets validates every wallet-bearing field. It returns the
// primary wallet (for auditing) and whether all fields were valid.
func (p *Pipeline) checkWallets(body map[string]any, r *http.Request) (string, bool) {
	primary := ""
	for _, field := range walletFields {
		value := ""
		if body != nil {
			if s, ok := body[field].(string); ok {
				value = s
			}
		}
		if value == "" {
			value = r.URL.Query().Get(field)
		}
		if value == "" {
			continue
		}
		if !sanitize.ValidWalletAddress(value) {
			return value, false
		}
		if primary == "" {
			primary = value
		}
	}
	return primary, true
}

// exempt reports whether the path skips CSRF validation.
func (p *Pipeline) exempt(path string) bool {
	for _, needle := range p.ExemptPaths {
		if strings.Contains(path, needle) {
			return true
		}
	}
	return false
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
