// Package responders writes API response bodies in their standard
// shapes. Error envelopes live in internal/errors; this package only
// covers success payloads.
package responders

import (
	"encoding/json"
	"net/http"
)

// JSON writes payload as an application/json response with the given
// status. A nil payload sends the status and headers only. HTML escaping
// is off so base58 addresses and signatures round-trip untouched.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
