/**
 * @description
 * HTTP handlers for the momo-service. They decode requests, call the payment
 * service and map its errors to HTTP status codes.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - go.uber.org/zap: structured logging.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/app"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/store"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/momoclient"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService is the behaviour the handlers need from app.Service.
type PaymentService interface {
	InitiateTopUp(ctx context.Context, userID uuid.UUID, req domain.TopUpRequest) (*domain.Payment, error)
	InitiateWithdrawal(ctx context.Context, userID uuid.UUID, req domain.WithdrawalRequest) (*domain.Payment, error)
	CheckTopUpStatus(ctx context.Context, userID uuid.UUID, referenceID string) (*domain.PaymentStatusResponse, error)
	CheckWithdrawalStatus(ctx context.Context, userID uuid.UUID, referenceID string) (*domain.PaymentStatusResponse, error)
	HandleCallback(ctx context.Context, raw []byte) (*domain.WebhookAck, error)
	ExecuteAutoSavings(ctx context.Context) (*domain.AutoSavingsSummary, error)
	ReconcilePending(ctx context.Context, minAge time.Duration, limit int) (*domain.ReconcileSummary, error)
}

// ReconcileOptions are the defaults for the batch reconciliation trigger.
type ReconcileOptions struct {
	MinAge time.Duration
	Limit  int
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	svc           PaymentService
	logger        *zap.Logger
	webhookSecret string
	reconcile     ReconcileOptions
}

// NewHandler creates a new Handler.
func NewHandler(svc PaymentService, webhookSecret string, reconcile ReconcileOptions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconcile.MinAge <= 0 {
		reconcile.MinAge = 5 * time.Minute
	}
	if reconcile.Limit <= 0 {
		reconcile.Limit = 100
	}
	return &Handler{
		svc:           svc,
		logger:        logger.Named("http"),
		webhookSecret: strings.TrimSpace(webhookSecret),
		reconcile:     reconcile,
	}
}

const maxRequestBodyBytes = 1 << 20

func (h *Handler) handleInitiateTopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not identify user")
		return
	}

	var req domain.TopUpRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.svc.InitiateTopUp(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, initiationResponse(payment))
}

func (h *Handler) handleInitiateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not identify user")
		return
	}

	var req domain.WithdrawalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.svc.InitiateWithdrawal(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, initiationResponse(payment))
}

func (h *Handler) handleTopUpStatus(w http.ResponseWriter, r *http.Request) {
	h.handleStatus(w, r, h.svc.CheckTopUpStatus)
}

func (h *Handler) handleWithdrawalStatus(w http.ResponseWriter, r *http.Request) {
	h.handleStatus(w, r, h.svc.CheckWithdrawalStatus)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, check func(context.Context, uuid.UUID, string) (*domain.PaymentStatusResponse, error)) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not identify user")
		return
	}

	status, err := check(r.Context(), userID, chi.URLParam(r, "referenceId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) handleExecuteAutoSavings(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.ExecuteAutoSavings(r.Context())
	if err != nil {
		h.logger.Error("auto-savings run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to execute auto-savings")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	minAge := h.reconcile.MinAge
	limit := h.reconcile.Limit
	if raw := r.URL.Query().Get("min_age_minutes"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			minAge = time.Duration(v) * time.Minute
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	summary, err := h.svc.ReconcilePending(r.Context(), minAge, limit)
	if err != nil {
		h.logger.Error("payment reconciliation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to reconcile payments")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func initiationResponse(p *domain.Payment) domain.PaymentInitiationResponse {
	return domain.PaymentInitiationResponse{
		ReferenceID: p.ReferenceID,
		Status:      p.Status,
		Amount:      p.Amount.String(),
		Currency:    p.Currency,
	}
}

// writeServiceError maps service errors to status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var rateErr *app.RateLimitError
	var apiErr *momoclient.APIError

	switch {
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrAmountTooLarge),
		errors.Is(err, app.ErrInvalidPhone),
		errors.Is(err, app.ErrMissingReferenceID),
		errors.Is(err, app.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Payment not found")
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrProviderNotConfigured):
		h.logger.Error("provider credentials missing", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &apiErr):
		h.logger.Warn("provider rejected request", zap.String("op", apiErr.Op), zap.Int("provider_status", apiErr.StatusCode))
		respondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":          "Mobile money provider rejected the request",
			"providerStatus": apiErr.StatusCode,
			"providerBody":   apiErr.Body,
		})
	case errors.Is(err, momoclient.ErrTokenUnavailable):
		h.logger.Error("provider authentication failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Mobile money provider authentication failed")
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
