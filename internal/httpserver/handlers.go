package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/solbeacon/server/internal/audit"
	apierrors "github.com/solbeacon/server/internal/errors"
	"github.com/solbeacon/server/internal/logger"
	"github.com/solbeacon/server/internal/security"
	"github.com/solbeacon/server/internal/storage"
	"github.com/solbeacon/server/pkg/responders"
	"github.com/solbeacon/server/pkg/x402"
)

// Input bounds for the write endpoints.
const (
	maxContentLength = 280
	maxTopicLength   = 50
	maxMessageLength = 500
)

// decodeJSON parses a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

// limitParam parses the limit query parameter with a default and cap.
func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// clientIP returns the pipeline-resolved client address for audit rows.
func clientIP(r *http.Request) string {
	if sc := security.FromContext(r.Context()); sc != nil {
		return sc.ClientIP
	}
	return security.ClientIP(r)
}

// requirePayment writes the 402 challenge telling the client what to pay.
func (h *handlers) requirePayment(w http.ResponseWriter, recipient string, amountSOL float64, description, nonce string) {
	responders.JSON(w, http.StatusPaymentRequired, x402.PaymentRequest{
		Network:     h.cfg.X402.Network,
		Recipient:   recipient,
		AmountSOL:   amountSOL,
		Description: description,
		Nonce:       nonce,
		ExpiresAt:   time.Now().Add(h.cfg.X402.PaymentFreshness.Duration).UTC(),
	})
}

// verifyPayment runs the verifier for one gated request, recording the
// outcome in metrics and the audit log. On failure it writes the error
// response and returns ok=false.
func (h *handlers) verifyPayment(w http.ResponseWriter, r *http.Request, kind, wallet string, proof *x402.PaymentProof, payouts []x402.Requirement) (*x402.VerificationResult, bool) {
	start := time.Now()

	// Durable replay backstop: the store's signature index survives the
	// restarts that empty the in-memory replay cache.
	used, err := h.store.HasSignatureBeenUsed(r.Context(), proof.Transaction)
	if err != nil {
		h.writeStorageError(w, r, err)
		return nil, false
	}
	if used {
		h.writeVerificationError(w, r, kind, wallet, storage.ErrDuplicateSignature)
		if h.metrics != nil {
			h.metrics.ObserveVerification(kind, false, "", 0, time.Since(start))
		}
		return nil, false
	}

	var result *x402.VerificationResult
	if len(payouts) == 1 {
		result, err = h.verifier.Verify(r.Context(), proof, payouts[0])
	} else {
		result, err = h.verifier.VerifySplit(r.Context(), proof, payouts)
	}

	if err != nil {
		h.writeVerificationError(w, r, kind, wallet, err)
		if h.metrics != nil {
			h.metrics.ObserveVerification(kind, false, "", 0, time.Since(start))
		}
		return nil, false
	}

	if h.metrics != nil {
		h.metrics.ObserveVerification(kind, true, result.Strategy,
			x402.LamportsFromSOL(result.AmountConfirmed), time.Since(start))
		h.metrics.ObserveAuditEntry(string(audit.ActionPaymentVerified))
	}
	h.pipeline.Audit.Record(clientIP(r), r.Method, r.URL.Path, wallet,
		audit.ActionPaymentVerified, map[string]any{
			"kind":       kind,
			"amount_sol": result.AmountConfirmed,
			"strategy":   result.Strategy,
		})
	return result, true
}

// writeVerificationError maps a verifier failure to its HTTP envelope.
func (h *handlers) writeVerificationError(w http.ResponseWriter, r *http.Request, kind, wallet string, err error) {
	reqLog := logger.FromContext(r.Context())

	code := apierrors.ErrCodeVerificationFailed
	message := "Payment verification failed."

	var ve *x402.VerificationError
	switch {
	case errors.As(err, &ve):
		code = ve.Code()
		message = ve.Error()
		if ve.IsReplay() && h.metrics != nil {
			h.metrics.ObserveReplay()
		}
	case errors.Is(err, storage.ErrDuplicateSignature):
		code = apierrors.ErrCodeReplayDetected
		message = "This payment has already been used."
		if h.metrics != nil {
			h.metrics.ObserveReplay()
		}
	}

	reqLog.Warn().
		Err(err).
		Str("kind", kind).
		Str("wallet", logger.TruncateAddress(wallet)).
		Str("code", string(code)).
		Msg("api.payment_rejected")

	h.pipeline.Audit.Record(clientIP(r), r.Method, r.URL.Path, wallet,
		audit.ActionPaymentRejected, map[string]any{
			"kind": kind,
			"code": string(code),
		})
	if h.metrics != nil {
		h.metrics.ObserveVerificationFailure(kind, string(code))
		h.metrics.ObserveAuditEntry(string(audit.ActionPaymentRejected))
	}

	apierrors.WriteSimpleError(w, code, message)
}

// writeStorageError logs a store failure and answers with a retryable
// database error. Duplicate signatures are surfaced as replays since the
// payment was already consumed by an earlier request.
func (h *handlers) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrDuplicateSignature) {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeReplayDetected,
			"This payment has already been used.")
		return
	}
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Msg("api.storage_failed")
	apierrors.WriteSimpleError(w, apierrors.ErrCodeDatabaseError,
		"Storage is temporarily unavailable. Please retry.")
}
