package x402

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solbeacon/server/internal/chain"
	apierrors "github.com/solbeacon/server/internal/errors"
)

const (
	treasury = "hQGYkc3kq3z6kJY2coFAoBaFhCgtSTa4UyEgVrCqFL6"
	taxAddr  = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	payer    = "4Nd1mYQo6QqvKMAKTmQWMPeGNsrQ6mDiGhc6b2cXdHfr"
)

// fakeReader serves canned transactions for verifier tests.
type fakeReader struct {
	txs      map[string]*chain.ConfirmedTransaction
	err      error
	endpoint string
}

func (f *fakeReader) GetConfirmedTransaction(_ context.Context, signature string) (*chain.ConfirmedTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.txs[signature]
	if !ok {
		return nil, chain.ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeReader) GetBalance(_ context.Context, _ string) (uint64, error) {
	return 0, nil
}

func (f *fakeReader) Endpoint() string {
	if f.endpoint == "" {
		return "https://api.mainnet-beta.solana.com"
	}
	return f.endpoint
}

// paidTx builds a confirmed transaction where recipient received
// lamports via balance delta.
func paidTx(recipient string, lamports uint64, at time.Time) *chain.ConfirmedTransaction {
	return &chain.ConfirmedTransaction{
		Accounts:     []string{payer, recipient},
		PreBalances:  []uint64{10 * lamports, 500},
		PostBalances: []uint64{9 * lamports, 500 + lamports},
		BlockTime:    at,
	}
}

func newTestVerifier(reader chain.Reader) *Verifier {
	return NewVerifier(reader, NewReplayCache(time.Hour))
}

func wantCode(t *testing.T, err error, code apierrors.ErrorCode) {
	t.Helper()
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %v is not a VerificationError", err)
	}
	if verr.Code() != code {
		t.Fatalf("error code = %s, want %s", verr.Code(), code)
	}
}

func TestVerify_Success_BalanceDelta(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{txs: map[string]*chain.ConfirmedTransaction{
		"sig-ok": paidTx(treasury, 1_000_000, now.Add(-time.Minute)),
	}}
	v := newTestVerifier(reader)

	proof := &PaymentProof{Transaction: "sig-ok", Amount: 0.001}
	result, err := v.Verify(context.Background(), proof, Requirement{Recipient: treasury, AmountSOL: 0.001})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Strategy != "balance_delta" {
		t.Errorf("strategy = %s, want balance_delta", result.Strategy)
	}
	if result.AmountConfirmed != 0.001 {
		t.Errorf("amount confirmed = %f", result.AmountConfirmed)
	}
	if result.Fingerprint == "" {
		t.Error("result missing fingerprint")
	}
}

func TestVerify_OverpaymentAccepted(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{txs: map[string]*chain.ConfirmedTransaction{
		"sig-over": paidTx(treasury, 5_000_000, now.Add(-time.Minute)),
	}}
	v := newTestVerifier(reader)

	proof := &PaymentProof{Transaction: "sig-over", Amount: 0.001}
	if _, err := v.Verify(context.Background(), proof, Requirement{Recipient: treasury, AmountSOL: 0.001}); err != nil {
		t.Fatalf("overpayment rejected: %v", err)
	}
}

func TestVerify_InstructionScanFallback(t *testing.T) {
	now := time.Now()
	// Balance metadata missing, but a system transfer to the treasury
	// is present.
	tx := &chain.ConfirmedTransaction{
		Accounts:  []string{payer, treasury},
		BlockTime: now.Add(-time.Minute),
		Instructions: []chain.Instruction{
			{ProgramID: systemProgramID, Accounts: []string{payer, treasury}},
		},
	}
	reader := &fakeReader{txs: map[string]*chain.ConfirmedTransaction{"sig-ins": tx}}
	v := newTestVerifier(reader)

	proof := &PaymentProof{Transaction: "sig-ins", Amount: 0.001}
	result, err := v.Verify(context.Background(), proof, Requirement{Recipient: treasury, AmountSOL: 0.001})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Strategy != "instruction_scan" {
		t.Errorf("strategy = %s, want instruction_scan", result.Strategy)
	}
}

func TestVerify_MalformedProof(t *testing.T) {
	v := newTestVerifier(&fakeReader{})
	ctx := context.Background()
	req := Requirement{Recipient: treasury, AmountSOL: 0.001}

	cases := []*PaymentProof{
		nil,
		{Transaction: "", Amount: 0.001},
		{Transaction: "sig", Amount: 0},
		{Transaction: "sig", Amount: -1},
	}
	for _, proof := range cases {
		_, err := v.Verify(ctx, proof, req)
		wantCode(t, err, apierrors.ErrCodeMalformedProof)
	}
}

func TestVerify_ReplayRejected(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{txs: map[string]*chain.ConfirmedTransaction{
		"sig-once": paidTx(treasury, 1_000_000, now.Add(-time.Minute)),
	}}
	v := newTestVerifier(reader)
	ctx := context.Background()
	req := Requirement{Recipient: treasury, AmountSOL: 0.001}

	proof := &PaymentProof{Transaction: "sig-once", Amount: 0.001}
	if _, err := v.Verify(ctx, proof, req); err != nil {
		t.Fatalf("first Verify failed: %v", err)
	}

	_, err := v.Verify(ctx, proof, req)
	wantCode(t, err, apierrors.ErrCodeReplayDetected)
}

func TestVerify_FailureReleasesFingerprint(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{txs: map[string]*chain.ConfirmedTransaction{}}
	v := newTestVerifier(reader)
	ctx := context.Background()
	req := Requirement{Recipient: treasury, AmountSOL: 0.001}
	proof := &PaymentProof{Transaction: "sig-late", Amount: 0.001}

	// Not confirmed yet.
	_, err := v.Verify(ctx, proof, req)
	wantCode(t, err, apierrors.ErrCodeTransactionNotFound)

	// Confirmation lands; the retry must not be treated as replay.
	reader.txs["sig-late"] = paidTx(treasury, 1_000_000, now.Add(-time.Minute))
	if _, err := v.Verify(ctx, proof, req); err != nil {
		t.Fatalf("retry after confirmation failed: %v", err)
	}
}

func TestVerify_TransactionExpired(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{txs: map[string]*chain.ConfirmedTransaction{
		"sig-old":    paidTx(treasury, 1_000_000, now.Add(-2*time.Hour)),
		"sig-notime": {Accounts: []string{payer, treasury}},
	}}
	v := newTestVerifier(reader)
	ctx := context.Background()
	req := Requirement{Recipient: treasury, AmountSOL: 0.001}

	_, err := v.Verify(ctx, &PaymentProof{Transaction: "sig-old", Amount: 0.001}, req)
	wantCode(t, err, apierrors.ErrCodeTransactionExpired)

	// Missing block time cannot prove freshness.
	_, err = v.Verify(ctx, &PaymentProof{Transaction: "sig-notime", Amount: 0.001}, req)
	wantCode(t, err, apierrors.ErrCodeTransactionExpired)
}

func TestVerify_TransactionFailed(t *testing.T) {
	now := time.Now()
	tx := paidTx(treasury, 1_000_000, now.Add(-time.Minute))
	tx.Failed = true
	tx.FailureText = "InstructionError"
	reader := &fakeReader{txs: map[string]*chain.ConfirmedTransaction{"sig-fail": tx}}
	v := newTestVerifier(reader)

	_, err := v.Verify(context.Background(), &PaymentProof{Transaction: "sig-fail", Amount: 0.001},
		Requirement{Recipient: treasury, AmountSOL: 0.001})
	wantCode(t, err, apierrors.ErrCodeTransactionFailed)
}

func TestVerify_PaymentNotFound(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{txs: map[string]*chain.ConfirmedTransaction{
		// Paid someone else.
		"sig-misdirected": paidTx(taxAddr, 1_000_000, now.Add(-time.Minute)),
		// Paid too little.
		"sig-short": paidTx(treasury, 10, now.Add(-time.Minute)),
	}}
	v := newTestVerifier(reader)
	ctx := context.Background()
	req := Requirement{Recipient: treasury, AmountSOL: 0.001}

	_, err := v.Verify(ctx, &PaymentProof{Transaction: "sig-misdirected", Amount: 0.001}, req)
	wantCode(t, err, apierrors.ErrCodePaymentNotFound)

	_, err = v.Verify(ctx, &PaymentProof{Transaction: "sig-short", Amount: 0.001}, req)
	wantCode(t, err, apierrors.ErrCodePaymentNotFound)
}

func TestVerify_WrongNetwork(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{
		txs: map[string]*chain.ConfirmedTransaction{
			"sig-ok": paidTx(treasury, 1_000_000, now.Add(-time.Minute)),
		},
		endpoint: "https://api.devnet.solana.com",
	}
	v := newTestVerifier(reader) // mainnet-only default

	_, err := v.Verify(context.Background(), &PaymentProof{Transaction: "sig-ok", Amount: 0.001},
		Requirement{Recipient: treasury, AmountSOL: 0.001})
	wantCode(t, err, apierrors.ErrCodeWrongNetwork)
}

func TestVerify_ChainErrorNeverFailsOpen(t *testing.T) {
	reader := &fakeReader{err: errors.New("rpc: connection reset")}
	v := newTestVerifier(reader)

	_, err := v.Verify(context.Background(), &PaymentProof{Transaction: "sig-x", Amount: 0.001},
		Requirement{Recipient: treasury, AmountSOL: 0.001})
	wantCode(t, err, apierrors.ErrCodeVerificationFailed)
}

func TestVerifySplit_BothPayoutsRequired(t *testing.T) {
	now := time.Now()
	// 0.1 SOL tip: 95% to recipient, 5% to tax wallet.
	recipientLamports := uint64(95_000_000)
	taxLamports := uint64(5_000_000)

	full := &chain.ConfirmedTransaction{
		Accounts:     []string{payer, treasury, taxAddr},
		PreBalances:  []uint64{200_000_000, 0, 0},
		PostBalances: []uint64{100_000_000, recipientLamports, taxLamports},
		BlockTime:    now.Add(-time.Minute),
	}
	// The tax payout is missing.
	partial := &chain.ConfirmedTransaction{
		Accounts:     []string{payer, treasury, taxAddr},
		PreBalances:  []uint64{200_000_000, 0, 0},
		PostBalances: []uint64{105_000_000, recipientLamports, 0},
		BlockTime:    now.Add(-time.Minute),
	}
	reader := &fakeReader{txs: map[string]*chain.ConfirmedTransaction{
		"sig-split":   full,
		"sig-partial": partial,
	}}
	v := newTestVerifier(reader)
	ctx := context.Background()

	payouts := []Requirement{
		{Recipient: treasury, AmountSOL: 0.095},
		{Recipient: taxAddr, AmountSOL: 0.005},
	}

	result, err := v.VerifySplit(ctx, &PaymentProof{Transaction: "sig-split", Amount: 0.1}, payouts)
	if err != nil {
		t.Fatalf("VerifySplit failed: %v", err)
	}
	if result.AmountConfirmed != 0.1 {
		t.Errorf("amount confirmed = %f, want 0.1", result.AmountConfirmed)
	}

	_, err = v.VerifySplit(ctx, &PaymentProof{Transaction: "sig-partial", Amount: 0.1}, payouts)
	wantCode(t, err, apierrors.ErrCodePaymentNotFound)
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("sig", 0.001, treasury, "", "")
	b := Fingerprint("sig", 0.001, treasury, "default", "default")
	if a != b {
		t.Error("empty nonce/timestamp must collide with explicit defaults")
	}

	c := Fingerprint("sig", 0.001, treasury, "n1", "")
	if a == c {
		t.Error("distinct nonces must not collide")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestParseProofHeader(t *testing.T) {
	proof, err := ParseProofHeader(`{"transaction":"sig","amount":0.001,"nonce":"n"}`)
	if err != nil {
		t.Fatalf("ParseProofHeader failed: %v", err)
	}
	if proof.Transaction != "sig" || proof.Amount != 0.001 || proof.Nonce != "n" {
		t.Errorf("parsed proof = %+v", proof)
	}

	if p, err := ParseProofHeader(""); p != nil || err != nil {
		t.Error("empty header should yield nil proof and nil error")
	}

	_, err = ParseProofHeader(`{not json`)
	wantCode(t, err, apierrors.ErrCodeMalformedProof)
}
