package x402

import (
	apierrors "github.com/solbeacon/server/internal/errors"
)

// errorKind pairs an error code with its outward-safe message. Internal
// detail travels in the wrapped error and only reaches the log.
type errorKind struct {
	code    apierrors.ErrorCode
	message string
}

var (
	errMalformedProof = errorKind{
		code:    apierrors.ErrCodeMalformedProof,
		message: "Payment proof is missing required fields or malformed.",
	}
	errReplayDetected = errorKind{
		code:    apierrors.ErrCodeReplayDetected,
		message: "This payment has already been used.",
	}
	errTransactionNotFound = errorKind{
		code:    apierrors.ErrCodeTransactionNotFound,
		message: "Transaction not found on chain. It may not be confirmed yet.",
	}
	errTransactionExpired = errorKind{
		code:    apierrors.ErrCodeTransactionExpired,
		message: "Transaction is too old. Payments must be recent.",
	}
	errTransactionFailed = errorKind{
		code:    apierrors.ErrCodeTransactionFailed,
		message: "Transaction failed on chain.",
	}
	errPaymentNotFound = errorKind{
		code:    apierrors.ErrCodePaymentNotFound,
		message: "No payment of the required amount to the required recipient was found in this transaction.",
	}
	errWrongNetwork = errorKind{
		code:    apierrors.ErrCodeWrongNetwork,
		message: "Payment was made on an unrecognized network.",
	}
	errVerificationFailed = errorKind{
		code:    apierrors.ErrCodeVerificationFailed,
		message: "Payment verification is temporarily unavailable. Please retry.",
	}
)

// VerificationError is the typed failure returned by the verifier.
type VerificationError struct {
	kind errorKind
	err  error
}

func newVerificationError(kind errorKind, err error) *VerificationError {
	return &VerificationError{kind: kind, err: err}
}

// Error returns the outward-safe message.
func (e *VerificationError) Error() string {
	return e.kind.message
}

// Unwrap exposes the internal cause for logging.
func (e *VerificationError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *VerificationError) Code() apierrors.ErrorCode {
	return e.kind.code
}

// IsReplay reports whether the failure was replay detection.
func (e *VerificationError) IsReplay() bool {
	return e.kind.code == apierrors.ErrCodeReplayDetected
}
