package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/store"
	"go.uber.org/zap"
)

// HandleCallback applies a MoMo callback body. The reference id is matched
// against top-ups first and withdrawals second. Every callback is written to the
// audit trail, matched or not. A SUCCESSFUL callback books at most one ledger row
// per reference id, so redelivery is harmless.
func (s *Service) HandleCallback(ctx context.Context, raw []byte) (*domain.WebhookAck, error) {
	var cb domain.MomoCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	referenceID := strings.TrimSpace(cb.ReferenceID)
	if referenceID == "" {
		return nil, ErrMissingReferenceID
	}

	status := domain.NormalizeStatus(cb.Status)
	update := domain.PaymentStatusUpdate{Status: &status}
	if ftid := strings.TrimSpace(cb.FinancialTransactionID); ftid != "" {
		update.FinancialTransactionID = &ftid
	}
	if reason := cb.Reason.String(); reason != "" {
		update.FailureReason = &reason
	}

	var (
		outcome *store.CallbackOutcome
		matched domain.PaymentKind
		err     error
	)
	for _, kind := range []domain.PaymentKind{domain.KindTopUp, domain.KindWithdrawal} {
		outcome, err = s.settle(ctx, kind, referenceID, update)
		if err == nil {
			matched = kind
			break
		}
		if !errors.Is(err, store.ErrNotFound) {
			break
		}
	}

	s.recordCallback(ctx, referenceID, matched, status, update, cb.ExternalID, raw)

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("callback for unknown reference", zap.String("reference_id", referenceID))
			return nil, err
		}
		s.logger.Error("failed to apply callback", zap.String("reference_id", referenceID), zap.Error(err))
		return nil, fmt.Errorf("apply callback %s: %w", referenceID, err)
	}

	s.logger.Info("callback applied",
		zap.String("reference_id", referenceID),
		zap.String("kind", string(matched)),
		zap.String("reported_status", string(status)),
		zap.String("status", string(outcome.Payment.Status)),
		zap.Bool("ledger_booked", outcome.Ledger != nil))

	return &domain.WebhookAck{
		Success:     true,
		ReferenceID: referenceID,
		Status:      outcome.Payment.Status,
	}, nil
}

func (s *Service) recordCallback(ctx context.Context, referenceID string, kind domain.PaymentKind, status domain.PaymentStatus, update domain.PaymentStatusUpdate, externalID string, raw []byte) {
	rec := &domain.CallbackRecord{
		ReferenceID:            referenceID,
		Kind:                   kind,
		Status:                 string(status),
		Reason:                 update.FailureReason,
		FinancialTransactionID: update.FinancialTransactionID,
		RawPayload:             raw,
	}
	if ext := strings.TrimSpace(externalID); ext != "" {
		rec.ExternalID = &ext
	}
	if err := s.repo.RecordCallback(ctx, rec); err != nil {
		s.logger.Warn("failed to record callback", zap.String("reference_id", referenceID), zap.Error(err))
	}
}
