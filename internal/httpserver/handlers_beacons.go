package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/solbeacon/server/internal/errors"
	"github.com/solbeacon/server/internal/storage"
	"github.com/solbeacon/server/pkg/responders"
	"github.com/solbeacon/server/pkg/x402"
)

type createBeaconRequest struct {
	Wallet  string `json:"wallet"`
	Content string `json:"content"`
	Topic   string `json:"topic,omitempty"`
}

// createBeacon posts a beacon to the feed. Without a payment proof the
// response is a 402 challenge quoting the fixed beacon price; with one,
// the payment is verified against the treasury before anything persists.
func (h *handlers) createBeacon(w http.ResponseWriter, r *http.Request) {
	var req createBeaconRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField,
			"Request body must be valid JSON.")
		return
	}
	if req.Wallet == "" {
		apierrors.WriteError(w, apierrors.ErrCodeMissingField,
			"wallet is required.", map[string]interface{}{"field": "wallet"})
		return
	}
	if req.Content == "" {
		apierrors.WriteError(w, apierrors.ErrCodeMissingField,
			"content is required.", map[string]interface{}{"field": "content"})
		return
	}
	if len(req.Content) > maxContentLength {
		apierrors.WriteError(w, apierrors.ErrCodeInvalidField,
			"content exceeds the maximum length.",
			map[string]interface{}{"field": "content", "max": maxContentLength})
		return
	}
	if len(req.Topic) > maxTopicLength {
		apierrors.WriteError(w, apierrors.ErrCodeInvalidField,
			"topic exceeds the maximum length.",
			map[string]interface{}{"field": "topic", "max": maxTopicLength})
		return
	}

	proof, err := x402.ParseProofHeader(r.Header.Get(x402.ProofHeader))
	if err != nil {
		h.writeVerificationError(w, r, "beacon", req.Wallet, err)
		return
	}

	priceSOL := x402.SOLFromLamports(h.cfg.X402.BeaconPriceLamports)
	if proof == nil {
		h.requirePayment(w, h.cfg.X402.TreasuryWallet, priceSOL,
			"Beacon post", uuid.NewString())
		return
	}

	result, ok := h.verifyPayment(w, r, "beacon", req.Wallet, proof, []x402.Requirement{
		{Recipient: h.cfg.X402.TreasuryWallet, AmountSOL: priceSOL},
	})
	if !ok {
		return
	}

	beacon := storage.Beacon{
		ID:             uuid.NewString(),
		Wallet:         req.Wallet,
		Content:        req.Content,
		Topic:          req.Topic,
		Signature:      proof.Transaction,
		AmountLamports: x402.LamportsFromSOL(result.AmountConfirmed),
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.SaveBeacon(r.Context(), beacon); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	responders.JSON(w, http.StatusCreated, beacon)
}

// getBeacon returns a single beacon by ID.
func (h *handlers) getBeacon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	beacon, err := h.store.GetBeacon(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeNotFound, "Beacon not found.")
			return
		}
		h.writeStorageError(w, r, err)
		return
	}
	responders.JSON(w, http.StatusOK, beacon)
}

// listBeacons returns the feed newest-first.
func (h *handlers) listBeacons(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 50, 100)
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	// The store caps by count only; offset paging slices the window.
	beacons, err := h.store.ListBeacons(r.Context(), limit+offset)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if offset >= len(beacons) {
		beacons = nil
	} else {
		beacons = beacons[offset:]
	}

	responders.JSON(w, http.StatusOK, map[string]interface{}{
		"beacons": beacons,
		"count":   len(beacons),
	})
}
