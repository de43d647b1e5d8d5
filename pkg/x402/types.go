// Package x402 implements HTTP 402 payment proof verification against
// confirmed Solana transactions, with replay protection. It trusts only
// chain state: a proof is merely a claim that a transaction paid the
// required amount to the required recipient.
package x402

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ProofHeader carries the JSON payment proof on gated requests.
const ProofHeader = "X-402-Proof"

// PaymentProof is the client's claim of an on-chain payment.
type PaymentProof struct {
	// Transaction is the base58 signature of the paying transaction.
	Transaction string `json:"transaction"`

	// Amount is the claimed payment amount in SOL.
	Amount float64 `json:"amount"`

	// Nonce and Timestamp are optional client-chosen values folded
	// into the fingerprint.
	Nonce     string `json:"nonce,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ParseProofHeader decodes the proof header value. A missing header is
// not an error here; gated handlers treat absence as "send 402".
func ParseProofHeader(raw string) (*PaymentProof, error) {
	if raw == "" {
		return nil, nil
	}
	var proof PaymentProof
	if err := json.Unmarshal([]byte(raw), &proof); err != nil {
		return nil, newVerificationError(errMalformedProof, fmt.Errorf("decode proof: %w", err))
	}
	return &proof, nil
}

// Requirement is one expected payout: a recipient and the SOL amount it
// must have received.
type Requirement struct {
	Recipient string
	AmountSOL float64
}

// PaymentRequest is the body of a 402 response telling the client what
// to pay. It is computed per request and never stored.
type PaymentRequest struct {
	Network     string    `json:"network"`
	Recipient   string    `json:"recipient"`
	AmountSOL   float64   `json:"amount_sol"`
	Description string    `json:"description"`
	Nonce       string    `json:"nonce"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// VerificationResult reports a successful verification.
type VerificationResult struct {
	// AmountConfirmed is the total SOL confirmed across all payouts.
	AmountConfirmed float64

	// Strategy names the detection strategy that accepted the payment.
	Strategy string

	// Fingerprint identifies the consumed proof.
	Fingerprint string
}

// Fingerprint derives the replay-protection key for a proof bound to a
// recipient and amount. Optional nonce and timestamp default so that
// two proofs for the same transaction, amount, and recipient collide.
func Fingerprint(transaction string, amountSOL float64, recipient, nonce, timestamp string) string {
	if nonce == "" {
		nonce = "default"
	}
	if timestamp == "" {
		timestamp = "default"
	}
	payload := fmt.Sprintf("%s-%s-%s-%s-%s",
		transaction,
		strconv.FormatFloat(amountSOL, 'g', -1, 64),
		recipient,
		nonce,
		timestamp,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
