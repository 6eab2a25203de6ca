package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/app"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/store"
	"go.uber.org/zap"
)

const callbackSignatureHeader = "X-Callback-Signature"

// handleMomoWebhook receives MoMo collection and disbursement callbacks.
func (h *Handler) handleMomoWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Cannot read request body")
		return
	}

	if !h.isValidSignature(r.Header.Get(callbackSignatureHeader), body) {
		h.logger.Warn("rejected callback with invalid signature", zap.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	ack, err := h.svc.HandleCallback(r.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidPayload):
			writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		case errors.Is(err, app.ErrMissingReferenceID):
			writeError(w, http.StatusBadRequest, "Missing referenceId")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Transaction not found")
		default:
			h.logger.Error("callback processing failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to process callback")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, ack)
}

// isValidSignature checks an HMAC-SHA256 of the raw body, hex or base64 encoded.
// Without a configured secret every callback is accepted.
func (h *Handler) isValidSignature(header string, body []byte) bool {
	if h.webhookSecret == "" {
		return true
	}
	header = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if provided, err := hex.DecodeString(header); err == nil && hmac.Equal(provided, expected) {
		return true
	}
	if provided, err := base64.StdEncoding.DecodeString(header); err == nil && hmac.Equal(provided, expected) {
		return true
	}
	return false
}
