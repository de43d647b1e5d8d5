package security

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const securityContextKey contextKey = "security_context"

// Context carries per-request security facts downstream after the
// pipeline has run.
type Context struct {
	ClientIP     string
	Wallet       string
	CSRFVerified bool
	ReceivedAt   time.Time
}

// WithContext stores the security context on the request context.
func WithContext(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, securityContextKey, sc)
}

// FromContext returns the security context, or nil when the pipeline
// did not run for this request.
func FromContext(ctx context.Context) *Context {
	sc, _ := ctx.Value(securityContextKey).(*Context)
	return sc
}

// ClientIP extracts the client address, honoring proxy headers and
// stripping the port.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First hop is the original client.
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
