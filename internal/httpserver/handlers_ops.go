package httpserver

import (
	"net/http"
	"time"

	"github.com/solbeacon/server/internal/audit"
	"github.com/solbeacon/server/internal/csrf"
	"github.com/solbeacon/server/pkg/responders"
)

// health reports liveness. Chain reachability surfaces through the
// verification metrics and circuit breaker state, not here; health must
// stay cheap enough for aggressive probe intervals.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"network": h.cfg.X402.Network,
		"uptime":  time.Since(serverStartTime).Round(time.Second).String(),
	})
}

// csrfToken issues a fresh token in the header, cookie, and body so the
// client can use whichever channel its setup preserves.
func (h *handlers) csrfToken(w http.ResponseWriter, r *http.Request) {
	token := h.pipeline.CSRF.Issue()
	csrf.Attach(w, token)

	ttl := h.cfg.Security.CSRFTokenTTL.Duration
	if ttl <= 0 {
		ttl = csrf.DefaultTTL
	}
	responders.JSON(w, http.StatusOK, map[string]interface{}{
		"csrf_token": token,
		"expires_in": int(ttl.Seconds()),
	})
}

// auditQuery returns recent security events newest-first, optionally
// filtered by action, client IP, or wallet prefix.
func (h *handlers) auditQuery(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 100, audit.MaxEntries)
	entries := h.pipeline.Audit.Query(limit, audit.Filter{
		Action:       audit.Action(r.URL.Query().Get("action")),
		IP:           r.URL.Query().Get("ip"),
		WalletPrefix: r.URL.Query().Get("walletPrefix"),
	})

	responders.JSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
