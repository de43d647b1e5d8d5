package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/solbeacon/server/internal/audit"
	"github.com/solbeacon/server/internal/config"
	"github.com/solbeacon/server/internal/csrf"
	"github.com/solbeacon/server/internal/ratelimit"
	"github.com/solbeacon/server/internal/security"
	platformwallet "github.com/solbeacon/server/internal/solana"
	"github.com/solbeacon/server/internal/storage"
	"github.com/solbeacon/server/pkg/x402"
)

const (
	testTreasury = "hQGYkc3kq3z6kJY2coFAoBaFhCgtSTa4UyEgVrCqFL6"
	testTax      = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testPayer    = "4Nd1mYvK3rQ5sV8tU2wX6yZ9aB1cD3eF5gH7jK9mN2pQ"
	testSig      = "5KtP3EzFEW5BgHwQpUwJdKVJnJkXKP2pTdhg1f3P1tSFzXQAnB7VrYeLmN8cD4gH2jK6mQ9sT1vW3xZ5aC7eF9iL"
)

type stubVerifier struct {
	result     *x402.VerificationResult
	err        error
	gotPayouts []x402.Requirement
}

func (s *stubVerifier) Verify(_ context.Context, _ *x402.PaymentProof, req x402.Requirement) (*x402.VerificationResult, error) {
	s.gotPayouts = []x402.Requirement{req}
	return s.result, s.err
}

func (s *stubVerifier) VerifySplit(_ context.Context, _ *x402.PaymentProof, payouts []x402.Requirement) (*x402.VerificationResult, error) {
	s.gotPayouts = payouts
	return s.result, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Address: ":0"},
		X402: config.X402Config{
			Network:             "mainnet-beta",
			TreasuryWallet:      testTreasury,
			TaxWallet:           testTax,
			BeaconPriceLamports: 1_000_000,
			TipRecipientShare:   95,
			PaymentFreshness:    config.Duration{Duration: time.Hour},
		},
		Security: config.SecurityConfig{
			CSRFTokenTTL: config.Duration{Duration: time.Hour},
		},
	}
}

func newTestServer(t *testing.T, verifier paymentVerifier) (*Server, *security.Pipeline) {
	t.Helper()

	pipeline := security.NewPipeline(
		ratelimit.NewLimiter(10_000, time.Minute),
		csrf.NewStore(time.Hour),
		audit.NewLog(),
		nil,
		[]string{"/health", "/api/csrf"},
	)
	deriver, err := platformwallet.NewWalletDeriver("test-secret")
	if err != nil {
		t.Fatal(err)
	}

	s := New(testConfig(), verifier, storage.NewMemoryStore(), deriver,
		pipeline, nil, zerolog.Nop())
	return s, pipeline
}

func doRequest(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, r)
	return rec
}

func csrfHeader(s *Server, r *http.Request) {
	r.Header.Set(csrf.HeaderName, s.pipeline.CSRF.Issue())
}

func proofHeader(r *http.Request, amount float64) {
	proof, _ := json.Marshal(x402.PaymentProof{Transaction: testSig, Amount: amount})
	r.Header.Set(x402.ProofHeader, string(proof))
}

func jsonBody(t *testing.T, payload any) *strings.Reader {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return strings.NewReader(string(raw))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body %s)", err, rec.Body.String())
	}
	return resp.Error.Code, resp.Error.Message
}

func TestCreateBeacon_ChallengeWithoutProof(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/api/beacons",
		jsonBody(t, map[string]any{"wallet": testPayer, "content": "gm solana"}))
	req.Header.Set("Content-Type", "application/json")
	csrfHeader(s, req)

	rec := doRequest(s, req)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402 (body %s)", rec.Code, rec.Body.String())
	}

	var challenge x402.PaymentRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if challenge.Recipient != testTreasury {
		t.Errorf("challenge recipient = %s, want treasury", challenge.Recipient)
	}
	if challenge.AmountSOL != 0.001 {
		t.Errorf("challenge amount = %v, want 0.001", challenge.AmountSOL)
	}
	if challenge.Nonce == "" {
		t.Error("challenge nonce empty")
	}
}

func TestCreateBeacon_VerifiedAndPersisted(t *testing.T) {
	verifier := &stubVerifier{result: &x402.VerificationResult{
		AmountConfirmed: 0.001,
		Strategy:        "balance_delta",
		Fingerprint:     "fp",
	}}
	s, pipeline := newTestServer(t, verifier)

	req := httptest.NewRequest(http.MethodPost, "/api/beacons",
		jsonBody(t, map[string]any{"wallet": testPayer, "content": "gm solana", "topic": "intro"}))
	req.Header.Set("Content-Type", "application/json")
	csrfHeader(s, req)
	proofHeader(req, 0.001)

	rec := doRequest(s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	var beacon storage.Beacon
	if err := json.Unmarshal(rec.Body.Bytes(), &beacon); err != nil {
		t.Fatal(err)
	}
	if beacon.ID == "" || beacon.Signature != testSig || beacon.AmountLamports != 1_000_000 {
		t.Errorf("beacon = %+v", beacon)
	}

	stored, err := s.store.ListBeacons(req.Context(), 10)
	if err != nil || len(stored) != 1 {
		t.Fatalf("ListBeacons = %v, %v", stored, err)
	}
	if len(verifier.gotPayouts) != 1 || verifier.gotPayouts[0].Recipient != testTreasury {
		t.Errorf("verifier payouts = %+v", verifier.gotPayouts)
	}

	verified := pipeline.Audit.Query(10, audit.Filter{Action: audit.ActionPaymentVerified})
	if len(verified) != 1 {
		t.Errorf("audit verified entries = %d, want 1", len(verified))
	}
}

func TestCreateBeacon_ValidationErrors(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	tests := []struct {
		name     string
		body     map[string]any
		wantCode string
	}{
		{"missing wallet", map[string]any{"content": "hi"}, "missing_field"},
		{"missing content", map[string]any{"wallet": testPayer}, "missing_field"},
		{"content too long", map[string]any{"wallet": testPayer, "content": strings.Repeat("a", 281)}, "invalid_field"},
		{"topic too long", map[string]any{"wallet": testPayer, "content": "hi", "topic": strings.Repeat("t", 51)}, "invalid_field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/beacons", jsonBody(t, tt.body))
			req.Header.Set("Content-Type", "application/json")
			csrfHeader(s, req)

			rec := doRequest(s, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if code, _ := decodeError(t, rec); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestCreateBeacon_MalformedProofRejected(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/api/beacons",
		jsonBody(t, map[string]any{"wallet": testPayer, "content": "gm"}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(x402.ProofHeader, "{not json")
	csrfHeader(s, req)

	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code, _ := decodeError(t, rec); code != "malformed_proof" {
		t.Errorf("code = %s, want malformed_proof", code)
	}
}

func TestCreateBeacon_VerifierErrorMapped(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{err: errors.New("rpc exploded")})

	req := httptest.NewRequest(http.MethodPost, "/api/beacons",
		jsonBody(t, map[string]any{"wallet": testPayer, "content": "gm"}))
	req.Header.Set("Content-Type", "application/json")
	csrfHeader(s, req)
	proofHeader(req, 0.001)

	rec := doRequest(s, req)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	code, message := decodeError(t, rec)
	if code != "verification_failed" {
		t.Errorf("code = %s, want verification_failed", code)
	}
	if strings.Contains(message, "rpc exploded") {
		t.Error("internal error detail leaked to client")
	}
}

func TestCreateBeacon_DuplicateSignatureIsReplay(t *testing.T) {
	verifier := &stubVerifier{result: &x402.VerificationResult{AmountConfirmed: 0.001, Strategy: "balance_delta"}}
	s, _ := newTestServer(t, verifier)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/beacons",
			jsonBody(t, map[string]any{"wallet": testPayer, "content": "gm"}))
		req.Header.Set("Content-Type", "application/json")
		csrfHeader(s, req)
		proofHeader(req, 0.001)
		return doRequest(s, req)
	}

	if rec := post(); rec.Code != http.StatusCreated {
		t.Fatalf("first post status = %d", rec.Code)
	}
	rec := post()
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("second post status = %d, want 402", rec.Code)
	}
	if code, _ := decodeError(t, rec); code != "replay_detected" {
		t.Errorf("code = %s, want replay_detected", code)
	}
}

func TestCreateBeacon_StoredSignatureRejectedBeforeVerifier(t *testing.T) {
	verifier := &stubVerifier{result: &x402.VerificationResult{AmountConfirmed: 0.001, Strategy: "balance_delta"}}
	s, _ := newTestServer(t, verifier)

	// The signature was consumed by an earlier tip, as after a restart
	// that emptied the in-memory replay cache.
	err := s.store.SaveTip(context.Background(), storage.Tip{
		ID:         "t1",
		FromWallet: testPayer,
		ToWallet:   testTreasury,
		Signature:  testSig,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/beacons",
		jsonBody(t, map[string]any{"wallet": testPayer, "content": "gm"}))
	req.Header.Set("Content-Type", "application/json")
	csrfHeader(s, req)
	proofHeader(req, 0.001)

	rec := doRequest(s, req)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402 (body %s)", rec.Code, rec.Body.String())
	}
	if code, _ := decodeError(t, rec); code != "replay_detected" {
		t.Errorf("code = %s, want replay_detected", code)
	}
	if verifier.gotPayouts != nil {
		t.Error("verifier ran for a signature the store had already recorded")
	}
}

func TestGetBeacon(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	err := s.store.SaveBeacon(context.Background(), storage.Beacon{
		ID:        "b1",
		Wallet:    testPayer,
		Content:   "gm",
		Signature: testSig,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/beacons/b1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var beacon storage.Beacon
	if err := json.Unmarshal(rec.Body.Bytes(), &beacon); err != nil {
		t.Fatal(err)
	}
	if beacon.ID != "b1" || beacon.Content != "gm" {
		t.Errorf("beacon = %+v", beacon)
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/api/beacons/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing beacon status = %d, want 404", rec.Code)
	}
	if code, _ := decodeError(t, rec); code != "not_found" {
		t.Errorf("code = %s, want not_found", code)
	}
}

func TestListBeacons_Pagination(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	now := time.Now()
	for i := 0; i < 5; i++ {
		err := s.store.SaveBeacon(context.Background(), storage.Beacon{
			ID:        string(rune('a' + i)),
			Wallet:    testPayer,
			Content:   "post",
			Signature: strings.Repeat(string(rune('a'+i)), 8),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/beacons?limit=2&offset=1", nil)
	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Beacons []storage.Beacon `json:"beacons"`
		Count   int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	// Newest-first with offset 1 skips the newest.
	if resp.Beacons[0].ID != "d" {
		t.Errorf("first beacon = %s, want d", resp.Beacons[0].ID)
	}
}

func TestCreateTip_SplitPayouts(t *testing.T) {
	verifier := &stubVerifier{result: &x402.VerificationResult{AmountConfirmed: 0.1, Strategy: "balance_delta"}}
	s, _ := newTestServer(t, verifier)

	req := httptest.NewRequest(http.MethodPost, "/api/tips",
		jsonBody(t, map[string]any{
			"from_wallet": testPayer,
			"to_wallet":   testTreasury,
			"amount_sol":  0.1,
			"message":     "great post",
		}))
	req.Header.Set("Content-Type", "application/json")
	csrfHeader(s, req)
	proofHeader(req, 0.1)

	rec := doRequest(s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	if len(verifier.gotPayouts) != 2 {
		t.Fatalf("payouts = %d, want 2", len(verifier.gotPayouts))
	}
	if verifier.gotPayouts[0].Recipient != testTreasury || verifier.gotPayouts[0].AmountSOL != 0.095 {
		t.Errorf("recipient payout = %+v", verifier.gotPayouts[0])
	}
	if verifier.gotPayouts[1].Recipient != testTax || verifier.gotPayouts[1].AmountSOL != 0.005 {
		t.Errorf("tax payout = %+v", verifier.gotPayouts[1])
	}

	var tip storage.Tip
	if err := json.Unmarshal(rec.Body.Bytes(), &tip); err != nil {
		t.Fatal(err)
	}
	if tip.RecipientLamports != 95_000_000 || tip.TaxLamports != 5_000_000 {
		t.Errorf("tip split = %d/%d", tip.RecipientLamports, tip.TaxLamports)
	}
}

func TestCreateTip_NoTaxWalletSingleRequirement(t *testing.T) {
	verifier := &stubVerifier{result: &x402.VerificationResult{AmountConfirmed: 0.1, Strategy: "balance_delta"}}
	s, _ := newTestServer(t, verifier)
	s.cfg.X402.TaxWallet = ""

	req := httptest.NewRequest(http.MethodPost, "/api/tips",
		jsonBody(t, map[string]any{
			"from_wallet": testPayer,
			"to_wallet":   testTreasury,
			"amount_sol":  0.1,
		}))
	req.Header.Set("Content-Type", "application/json")
	csrfHeader(s, req)
	proofHeader(req, 0.1)

	rec := doRequest(s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if len(verifier.gotPayouts) != 1 || verifier.gotPayouts[0].AmountSOL != 0.1 {
		t.Errorf("payouts = %+v", verifier.gotPayouts)
	}
}

func TestCreateTip_SelfTipRejected(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/api/tips",
		jsonBody(t, map[string]any{
			"from_wallet": testPayer,
			"to_wallet":   testPayer,
			"amount_sol":  0.1,
		}))
	req.Header.Set("Content-Type", "application/json")
	csrfHeader(s, req)

	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRecentTips(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	now := time.Now()
	for i, tip := range []storage.Tip{
		{ID: "t1", FromWallet: testPayer, ToWallet: testTreasury, Signature: "ts1"},
		{ID: "t2", FromWallet: testTreasury, ToWallet: testTax, Signature: "ts2"},
	} {
		tip.CreatedAt = now.Add(time.Duration(i) * time.Second)
		if err := s.store.SaveTip(context.Background(), tip); err != nil {
			t.Fatal(err)
		}
	}

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/tips/recent?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Tips  []storage.Tip `json:"tips"`
		Count int           `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || resp.Tips[0].ID != "t2" {
		t.Errorf("recent tips = %+v", resp)
	}
}

func TestPlatformDeposit_ChallengeUsesDerivedAddress(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	want, err := s.deriver.DeriveAddress(testPayer)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/platform/deposit",
		jsonBody(t, map[string]any{"user_wallet": testPayer, "amount_sol": 0.5}))
	req.Header.Set("Content-Type", "application/json")
	csrfHeader(s, req)

	rec := doRequest(s, req)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402 (body %s)", rec.Code, rec.Body.String())
	}

	var challenge x402.PaymentRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatal(err)
	}
	if challenge.Recipient != want {
		t.Errorf("challenge recipient = %s, want derived address %s", challenge.Recipient, want)
	}
}

func TestPlatformDeposit_RecordedWithHistory(t *testing.T) {
	verifier := &stubVerifier{result: &x402.VerificationResult{AmountConfirmed: 0.5, Strategy: "balance_delta"}}
	s, _ := newTestServer(t, verifier)

	req := httptest.NewRequest(http.MethodPost, "/api/platform/deposit",
		jsonBody(t, map[string]any{"user_wallet": testPayer, "amount_sol": 0.5}))
	req.Header.Set("Content-Type", "application/json")
	csrfHeader(s, req)
	proofHeader(req, 0.5)

	rec := doRequest(s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	histReq := httptest.NewRequest(http.MethodGet, "/api/platform/transactions?wallet="+testPayer, nil)
	histRec := doRequest(s, histReq)
	if histRec.Code != http.StatusOK {
		t.Fatalf("history status = %d", histRec.Code)
	}

	var resp struct {
		Transactions []storage.PlatformTransaction `json:"transactions"`
		Count        int                           `json:"count"`
	}
	if err := json.Unmarshal(histRec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Transactions[0].Kind != storage.PlatformDeposit {
		t.Errorf("history = %+v", resp)
	}
	if resp.Transactions[0].AmountLamports != 500_000_000 {
		t.Errorf("amount = %d lamports", resp.Transactions[0].AmountLamports)
	}
}

func TestCSRFTokenEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/csrf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Token     string `json:"csrf_token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" || resp.ExpiresIn != 3600 {
		t.Errorf("csrf response = %+v", resp)
	}
	if !s.pipeline.CSRF.Verify(resp.Token) {
		t.Error("issued token does not verify")
	}

	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrf.CookieName && c.Value == resp.Token {
			found = true
		}
	}
	if !found {
		t.Error("csrf cookie missing")
	}
}

func TestAuditEndpoint(t *testing.T) {
	s, pipeline := newTestServer(t, &stubVerifier{})

	pipeline.Audit.Record("198.51.100.7", "POST", "/api/beacons", testPayer,
		audit.ActionPaymentVerified, nil)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/audit?action=PAYMENT_VERIFIED", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Entries []audit.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count < 1 {
		t.Fatal("no audit entries returned")
	}
	if resp.Entries[0].WalletPrefix == testPayer {
		t.Error("full wallet address stored in audit entry")
	}
}

func TestAuditEndpoint_AdminKeyRequired(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})
	s.cfg.Server.AdminAPIKey = "secret-key"

	// The router captured the key at construction; rebuild.
	s2 := New(s.cfg, s.verifier, s.store, s.deriver, s.pipeline, nil, zerolog.Nop())

	rec := doRequest(s2, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	if rec := doRequest(s2, req); rec.Code != http.StatusOK {
		t.Fatalf("status with key = %d, want 200", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &stubVerifier{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("health = %+v", resp)
	}
}
