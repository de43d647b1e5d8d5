package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/solbeacon/server/internal/errors"
	"github.com/solbeacon/server/internal/storage"
	"github.com/solbeacon/server/pkg/responders"
	"github.com/solbeacon/server/pkg/x402"
)

type createTipRequest struct {
	FromWallet string  `json:"from_wallet"`
	ToWallet   string  `json:"to_wallet"`
	AmountSOL  float64 `json:"amount_sol"`
	Message    string  `json:"message,omitempty"`
}

// createTip records a wallet-to-wallet tip. The payment must carry the
// fee split: the recipient's share and the platform tax share are both
// verified against the same transaction before the tip persists.
func (h *handlers) createTip(w http.ResponseWriter, r *http.Request) {
	var req createTipRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField,
			"Request body must be valid JSON.")
		return
	}
	if req.FromWallet == "" || req.ToWallet == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField,
			"from_wallet and to_wallet are required.")
		return
	}
	if req.FromWallet == req.ToWallet {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField,
			"Cannot tip your own wallet.")
		return
	}
	if req.AmountSOL <= 0 {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidAmount,
			"amount_sol must be positive.")
		return
	}
	if len(req.Message) > maxMessageLength {
		apierrors.WriteError(w, apierrors.ErrCodeInvalidField,
			"message exceeds the maximum length.",
			map[string]interface{}{"field": "message", "max": maxMessageLength})
		return
	}

	totalLamports := x402.LamportsFromSOL(req.AmountSOL)
	recipientLamports := totalLamports * uint64(h.cfg.X402.TipRecipientShare) / 100
	taxLamports := totalLamports - recipientLamports

	payouts := []x402.Requirement{
		{Recipient: req.ToWallet, AmountSOL: x402.SOLFromLamports(recipientLamports)},
	}
	if h.cfg.X402.TaxWallet != "" {
		payouts = append(payouts, x402.Requirement{
			Recipient: h.cfg.X402.TaxWallet,
			AmountSOL: x402.SOLFromLamports(taxLamports),
		})
	} else {
		// No tax wallet configured, the recipient takes the whole tip.
		payouts[0].AmountSOL = req.AmountSOL
		recipientLamports = totalLamports
		taxLamports = 0
	}

	proof, err := x402.ParseProofHeader(r.Header.Get(x402.ProofHeader))
	if err != nil {
		h.writeVerificationError(w, r, "tip", req.FromWallet, err)
		return
	}
	if proof == nil {
		h.requirePayment(w, req.ToWallet, req.AmountSOL, "Tip", uuid.NewString())
		return
	}

	if _, ok := h.verifyPayment(w, r, "tip", req.FromWallet, proof, payouts); !ok {
		return
	}

	tip := storage.Tip{
		ID:                uuid.NewString(),
		FromWallet:        req.FromWallet,
		ToWallet:          req.ToWallet,
		Message:           req.Message,
		Signature:         proof.Transaction,
		AmountLamports:    totalLamports,
		RecipientLamports: recipientLamports,
		TaxLamports:       taxLamports,
		CreatedAt:         time.Now().UTC(),
	}
	if err := h.store.SaveTip(r.Context(), tip); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	responders.JSON(w, http.StatusCreated, tip)
}

// recentTips returns the latest tips across all wallets, or one wallet's
// history when the wallet query parameter is present.
func (h *handlers) recentTips(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 50, 100)

	var (
		tips []storage.Tip
		err  error
	)
	if wallet := r.URL.Query().Get("wallet"); wallet != "" {
		tips, err = h.store.ListTipsForWallet(r.Context(), wallet, limit)
	} else {
		tips, err = h.store.ListRecentTips(r.Context(), limit)
	}
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	responders.JSON(w, http.StatusOK, map[string]interface{}{
		"tips":  tips,
		"count": len(tips),
	})
}
