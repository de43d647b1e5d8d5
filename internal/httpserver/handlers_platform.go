package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/solbeacon/server/internal/errors"
	"github.com/solbeacon/server/internal/logger"
	platformwallet "github.com/solbeacon/server/internal/solana"
	"github.com/solbeacon/server/internal/storage"
	"github.com/solbeacon/server/pkg/responders"
	"github.com/solbeacon/server/pkg/x402"
)

type platformDepositRequest struct {
	UserWallet string  `json:"user_wallet"`
	AmountSOL  float64 `json:"amount_sol"`
}

// platformDeposit verifies a payment to the user's derived platform
// wallet and records it. The derived address is deterministic, so the
// 402 challenge and the later verification always agree on the
// recipient.
func (h *handlers) platformDeposit(w http.ResponseWriter, r *http.Request) {
	var req platformDepositRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField,
			"Request body must be valid JSON.")
		return
	}
	if req.UserWallet == "" {
		apierrors.WriteError(w, apierrors.ErrCodeMissingField,
			"user_wallet is required.", map[string]interface{}{"field": "user_wallet"})
		return
	}
	if req.AmountSOL <= 0 {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidAmount,
			"amount_sol must be positive.")
		return
	}

	if h.deriver == nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeConfigError,
			"Platform deposits are not available.")
		return
	}

	depositAddress, err := h.deriver.DeriveAddress(req.UserWallet)
	if err != nil {
		if errors.Is(err, platformwallet.ErrInvalidUserWallet) {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeBadWalletFormat,
				"Wallet address is not a valid Solana address.")
			return
		}
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("api.wallet_derivation_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeConfigError,
			"Platform deposits are not available.")
		return
	}

	proof, err := x402.ParseProofHeader(r.Header.Get(x402.ProofHeader))
	if err != nil {
		h.writeVerificationError(w, r, "platform_deposit", req.UserWallet, err)
		return
	}
	if proof == nil {
		h.requirePayment(w, depositAddress, req.AmountSOL,
			"Platform wallet deposit", uuid.NewString())
		return
	}

	result, ok := h.verifyPayment(w, r, "platform_deposit", req.UserWallet, proof, []x402.Requirement{
		{Recipient: depositAddress, AmountSOL: req.AmountSOL},
	})
	if !ok {
		return
	}

	tx := storage.PlatformTransaction{
		ID:             uuid.NewString(),
		UserWallet:     req.UserWallet,
		DepositAddress: depositAddress,
		Signature:      proof.Transaction,
		AmountLamports: x402.LamportsFromSOL(result.AmountConfirmed),
		Kind:           storage.PlatformDeposit,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.RecordPlatformTransaction(r.Context(), tx); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	responders.JSON(w, http.StatusCreated, tx)
}

// platformTransactions returns a user's platform wallet history.
func (h *handlers) platformTransactions(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		apierrors.WriteError(w, apierrors.ErrCodeMissingField,
			"wallet query parameter is required.", map[string]interface{}{"field": "wallet"})
		return
	}
	limit := limitParam(r, 50, 100)

	txs, err := h.store.ListPlatformTransactions(r.Context(), wallet, limit)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	responders.JSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}
