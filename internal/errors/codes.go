package errors

// ErrorCode represents a machine-readable error identifier for client error handling.
type ErrorCode string

// Payment verification errors (x402 proof checking against Solana)
const (
	// Proof structure or parsing problems
	ErrCodeMalformedProof ErrorCode = "malformed_proof"

	// Replay protection: the fingerprint has already been accepted
	ErrCodeReplayDetected ErrorCode = "replay_detected"

	// Solana transaction lookup and state failures
	ErrCodeTransactionNotFound ErrorCode = "transaction_not_found"
	ErrCodeTransactionExpired  ErrorCode = "transaction_expired"
	ErrCodeTransactionFailed   ErrorCode = "transaction_failed"

	// Neither detection strategy located the expected transfer
	ErrCodePaymentNotFound ErrorCode = "payment_not_found"

	// The RPC endpoint in use is not a recognized production network
	ErrCodeWrongNetwork ErrorCode = "wrong_network"

	// Chain query failed (RPC error, timeout, malformed response) - never fails open
	ErrCodeVerificationFailed ErrorCode = "verification_failed"
)

// Security middleware errors
const (
	ErrCodeRateLimited     ErrorCode = "rate_limited"
	ErrCodeCSRFInvalid     ErrorCode = "csrf_invalid"
	ErrCodeBadWalletFormat ErrorCode = "bad_wallet_format"
)

// Request validation errors
const (
	ErrCodeMissingField  ErrorCode = "missing_field"
	ErrCodeInvalidField  ErrorCode = "invalid_field"
	ErrCodeInvalidAmount ErrorCode = "invalid_amount"
)

// Resource/state errors
const (
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"
)

// Internal/system errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeDatabaseError ErrorCode = "database_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Every rejection here is recoverable from the caller's perspective, but only
// transient failures should be retried with the same proof; replay and
// validation failures need a fresh request.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeVerificationFailed,
		ErrCodeRateLimited,
		ErrCodeDatabaseError:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - client validation errors
	case ErrCodeMalformedProof,
		ErrCodeBadWalletFormat,
		ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidAmount:
		return 400

	// 402 Payment Required - payment verification failures
	case ErrCodeReplayDetected,
		ErrCodeTransactionNotFound,
		ErrCodeTransactionExpired,
		ErrCodeTransactionFailed,
		ErrCodePaymentNotFound,
		ErrCodeWrongNetwork,
		ErrCodeVerificationFailed:
		return 402

	// 403 Forbidden - anti-forgery failures
	case ErrCodeCSRFInvalid:
		return 403

	case ErrCodeNotFound:
		return 404

	case ErrCodeMethodNotAllowed:
		return 405

	case ErrCodeRateLimited:
		return 429

	// 500 Internal Server Error - system/internal errors
	default:
		return 500
	}
}
