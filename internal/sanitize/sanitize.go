// Package sanitize bounds and cleans untrusted string input before it
// reaches handlers or storage. All functions are pure.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxTextLength is the truncation bound applied to general text input.
const MaxTextLength = 1000

var (
	// Dangerous characters: angle brackets, quotes, backslash, semicolon.
	dangerousChars = regexp.MustCompile(`[<>'";\\]`)

	// Inline event handler attributes such as onclick= or onerror=.
	eventHandlers = regexp.MustCompile(`(?i)on\w+=`)

	// javascript: protocol, case-insensitive.
	jsProtocol = regexp.MustCompile(`(?i)javascript:`)

	// Base58 alphabet, 32-44 characters (Solana address shape).
	walletAddress = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// Clean strips dangerous characters and script-injection patterns from s,
// trims surrounding whitespace, and truncates to MaxTextLength.
//
// Recognized data-URI payloads pass through untouched: the ";base64,"
// separator would be eaten by the character strip, and cutting a
// base64-encoded image at an arbitrary byte silently corrupts it. The
// payload is length-checked by the handlers that accept one.
func Clean(s string) string {
	out := strings.TrimSpace(s)
	if isDataURI(out) {
		return out
	}

	out = dangerousChars.ReplaceAllString(out, "")
	out = jsProtocol.ReplaceAllString(out, "")
	out = eventHandlers.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)

	if len(out) > MaxTextLength {
		out = out[:MaxTextLength]
	}
	return out
}

// CleanMap sanitizes every string value of m in place and returns m.
// Non-string values pass through unchanged.
func CleanMap(m map[string]any) map[string]any {
	for k, v := range m {
		if s, ok := v.(string); ok {
			m[k] = Clean(s)
		}
	}
	return m
}

// ValidWalletAddress reports whether s looks like a base58 Solana address.
// The address is treated as opaque beyond its format; no on-curve check.
func ValidWalletAddress(s string) bool {
	return walletAddress.MatchString(s)
}

func isDataURI(s string) bool {
	return strings.HasPrefix(s, "data:") && strings.Contains(s, ";base64,")
}
