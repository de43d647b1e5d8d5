// Package csrf implements the double-submit anti-forgery token store.
// Tokens are issued on safe requests and must be echoed back via the
// X-CSRF-Token header or the csrf_token cookie on mutating requests.
package csrf

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

// HeaderName is the request/response header carrying the token.
const HeaderName = "X-CSRF-Token"

// CookieName is the same-site cookie carrying the token.
const CookieName = "csrf_token"

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = time.Hour

// Store issues and verifies anti-forgery tokens. Tokens are consumed by
// read, not deleted, so a client may reuse one until it expires.
type Store struct {
	mu     sync.Mutex
	tokens map[string]time.Time // token -> issuedAt
	ttl    time.Duration
	clock  func() time.Time
}

// NewStore creates a token store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		tokens: make(map[string]time.Time),
		ttl:    ttl,
		clock:  time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Issue generates a cryptographically random 256-bit token and records its
// issue time.
func (s *Store) Issue() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic("csrf: rand.Read: " + err.Error())
	}
	token := hex.EncodeToString(b)

	s.mu.Lock()
	s.tokens[token] = s.clock()
	s.mu.Unlock()

	return token
}

// Verify reports whether token exists and is within its TTL. Expired
// tokens are deleted on check; the periodic sweep catches the rest.
func (s *Store) Verify(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issuedAt, ok := s.tokens[token]
	if !ok {
		return false
	}
	if s.clock().Sub(issuedAt) > s.ttl {
		delete(s.tokens, token)
		return false
	}
	return true
}

// FromRequest extracts the token from either submission channel. A match
// on either the header or the cookie is sufficient.
func FromRequest(r *http.Request) string {
	if token := r.Header.Get(HeaderName); token != "" {
		return token
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Attach writes a freshly issued token to both response channels so the
// client can echo it back through whichever survives its setup.
func Attach(w http.ResponseWriter, token string) {
	w.Header().Set(HeaderName, token)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(DefaultTTL.Seconds()),
		SameSite: http.SameSiteStrictMode,
		HttpOnly: false, // the front-end reads it to fill the header channel
	})
}

// Sweep removes expired tokens and returns how many were dropped.
func (s *Store) Sweep() int {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, issuedAt := range s.tokens {
		if now.Sub(issuedAt) > s.ttl {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of live tokens (tests and metrics).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
