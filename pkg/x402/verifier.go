package x402

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/solbeacon/server/internal/chain"
	"github.com/solbeacon/server/internal/logger"
)

// DefaultFreshness is how recent a paying transaction must be.
const DefaultFreshness = 1 * time.Hour

// Verifier checks payment proofs against confirmed chain state. Every
// failure path returns a typed VerificationError; chain trouble is
// reported as verification_failed, never treated as success.
type Verifier struct {
	reader     chain.Reader
	replay     *ReplayCache
	strategies []DetectionStrategy
	networks   []string
	freshness  time.Duration
	clock      func() time.Time
}

// NewVerifier creates a verifier with the production strategy order.
func NewVerifier(reader chain.Reader, replay *ReplayCache) *Verifier {
	return &Verifier{
		reader:     reader,
		replay:     replay,
		strategies: defaultStrategies(),
		networks:   []string{"mainnet"},
		freshness:  DefaultFreshness,
		clock:      time.Now,
	}
}

// WithNetworks sets the endpoint substrings accepted as the configured
// network.
func (v *Verifier) WithNetworks(networks []string) *Verifier {
	if len(networks) > 0 {
		v.networks = networks
	}
	return v
}

// WithFreshness overrides the transaction freshness window.
func (v *Verifier) WithFreshness(d time.Duration) *Verifier {
	if d > 0 {
		v.freshness = d
	}
	return v
}

// WithClock overrides the time source (tests).
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	v.clock = clock
	return v
}

// Replay exposes the replay cache for the background sweeper.
func (v *Verifier) Replay() *ReplayCache {
	return v.replay
}

// Verify checks a proof against a single payment requirement.
func (v *Verifier) Verify(ctx context.Context, proof *PaymentProof, req Requirement) (*VerificationResult, error) {
	return v.verify(ctx, proof, []Requirement{req})
}

// VerifySplit checks a proof against a set of payouts that must all be
// present in the same transaction, such as a tip's recipient share and
// platform fee. One fingerprint covers the whole set.
func (v *Verifier) VerifySplit(ctx context.Context, proof *PaymentProof, payouts []Requirement) (*VerificationResult, error) {
	return v.verify(ctx, proof, payouts)
}

func (v *Verifier) verify(ctx context.Context, proof *PaymentProof, payouts []Requirement) (*VerificationResult, error) {
	if err := checkStructure(proof, payouts); err != nil {
		return nil, err
	}

	total := 0.0
	for _, p := range payouts {
		total += p.AmountSOL
	}

	fp := Fingerprint(proof.Transaction, total, payouts[0].Recipient, proof.Nonce, proof.Timestamp)
	if !v.replay.Reserve(fp) {
		log.Warn().
			Str("signature", logger.TruncateAddress(proof.Transaction)).
			Msg("x402.replay_detected")
		return nil, newVerificationError(errReplayDetected, nil)
	}

	result, err := v.verifyOnChain(ctx, proof, payouts)
	if err != nil {
		// The fingerprint stays consumed only for committed proofs.
		v.replay.Release(fp)
		return nil, err
	}

	v.replay.Commit(fp, total)
	result.Fingerprint = fp
	result.AmountConfirmed = total

	log.Info().
		Str("signature", logger.TruncateAddress(proof.Transaction)).
		Str("strategy", result.Strategy).
		Float64("amount_sol", total).
		Msg("x402.payment_verified")
	return result, nil
}

// verifyOnChain runs the chain-dependent checks. The caller owns the
// replay reservation.
func (v *Verifier) verifyOnChain(ctx context.Context, proof *PaymentProof, payouts []Requirement) (*VerificationResult, error) {
	tx, err := v.reader.GetConfirmedTransaction(ctx, proof.Transaction)
	if err != nil {
		if errors.Is(err, chain.ErrTransactionNotFound) {
			return nil, newVerificationError(errTransactionNotFound, err)
		}
		log.Error().Err(err).
			Str("signature", logger.TruncateAddress(proof.Transaction)).
			Msg("x402.chain_query_failed")
		return nil, newVerificationError(errVerificationFailed, err)
	}

	// A transaction without a block time cannot prove freshness, so it
	// does not verify.
	if tx.BlockTime.IsZero() || v.clock().Sub(tx.BlockTime) > v.freshness {
		return nil, newVerificationError(errTransactionExpired,
			fmt.Errorf("block time %v outside freshness window %v", tx.BlockTime, v.freshness))
	}

	if tx.Failed {
		return nil, newVerificationError(errTransactionFailed,
			fmt.Errorf("on-chain error: %s", tx.FailureText))
	}

	strategy := ""
	for _, payout := range payouts {
		name, found := v.detect(tx, payout)
		if !found {
			return nil, newVerificationError(errPaymentNotFound,
				fmt.Errorf("no transfer of %f SOL to %s", payout.AmountSOL, payout.Recipient))
		}
		if strategy == "" {
			strategy = name
		}
	}

	if !v.recognizedNetwork() {
		return nil, newVerificationError(errWrongNetwork,
			fmt.Errorf("endpoint %s not in allow-list", v.reader.Endpoint()))
	}

	return &VerificationResult{Strategy: strategy}, nil
}

// detect runs the strategy chain for one payout.
func (v *Verifier) detect(tx *chain.ConfirmedTransaction, payout Requirement) (string, bool) {
	lamports := LamportsFromSOL(payout.AmountSOL)
	for _, strategy := range v.strategies {
		if strategy.Detect(tx, payout.Recipient, lamports) {
			return strategy.Name(), true
		}
	}
	return "", false
}

// recognizedNetwork checks the RPC endpoint against the allow-list.
func (v *Verifier) recognizedNetwork() bool {
	endpoint := strings.ToLower(v.reader.Endpoint())
	for _, needle := range v.networks {
		if strings.Contains(endpoint, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}

// checkStructure validates the proof shape before touching the chain.
func checkStructure(proof *PaymentProof, payouts []Requirement) error {
	if proof == nil {
		return newVerificationError(errMalformedProof, errors.New("proof missing"))
	}
	if proof.Transaction == "" {
		return newVerificationError(errMalformedProof, errors.New("transaction signature missing"))
	}
	if proof.Amount <= 0 {
		return newVerificationError(errMalformedProof, fmt.Errorf("non-positive amount %f", proof.Amount))
	}
	if len(payouts) == 0 {
		return newVerificationError(errMalformedProof, errors.New("no payout requirements"))
	}
	for _, p := range payouts {
		if p.Recipient == "" || p.AmountSOL <= 0 {
			return newVerificationError(errMalformedProof,
				fmt.Errorf("invalid requirement %q/%f", p.Recipient, p.AmountSOL))
		}
	}
	return nil
}

// LamportsFromSOL converts a SOL amount to lamports, rounding to the
// nearest lamport.
func LamportsFromSOL(amountSOL float64) uint64 {
	return uint64(math.Round(amountSOL * float64(solana.LAMPORTS_PER_SOL)))
}

// SOLFromLamports converts lamports to SOL.
func SOLFromLamports(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}
