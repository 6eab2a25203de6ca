package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/store"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/momoclient"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExpiredReason is stored on payments failed by the pending-expiry sweep.
const ExpiredReason = "expired"

// CheckTopUpStatus polls the provider for a top-up owned by userID and stores the result.
func (s *Service) CheckTopUpStatus(ctx context.Context, userID uuid.UUID, referenceID string) (*domain.PaymentStatusResponse, error) {
	return s.checkStatus(ctx, domain.KindTopUp, &userID, referenceID)
}

// CheckWithdrawalStatus polls the provider for a withdrawal owned by userID and stores the result.
func (s *Service) CheckWithdrawalStatus(ctx context.Context, userID uuid.UUID, referenceID string) (*domain.PaymentStatusResponse, error) {
	return s.checkStatus(ctx, domain.KindWithdrawal, &userID, referenceID)
}

// checkStatus overwrites the stored status with what the provider reports. It never
// books ledger rows. A nil owner skips the ownership check.
func (s *Service) checkStatus(ctx context.Context, kind domain.PaymentKind, owner *uuid.UUID, referenceID string) (*domain.PaymentStatusResponse, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return nil, ErrMissingReferenceID
	}

	payment, err := s.repo.FindPaymentByReferenceID(ctx, kind, referenceID)
	if err != nil {
		return nil, err
	}
	if owner != nil && payment.UserID != *owner {
		return nil, store.ErrNotFound
	}

	remote, err := s.providerStatus(ctx, kind, referenceID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, kind, referenceID, statusUpdateFromProvider(remote))
	if err != nil {
		return nil, fmt.Errorf("update %s status: %w", kind, err)
	}

	return &domain.PaymentStatusResponse{
		ReferenceID:            updated.ReferenceID,
		Status:                 updated.Status,
		FinancialTransactionID: updated.FinancialTransactionID,
		Reason:                 updated.FailureReason,
	}, nil
}

func (s *Service) providerStatus(ctx context.Context, kind domain.PaymentKind, referenceID string) (*momoclient.StatusResponse, error) {
	switch kind {
	case domain.KindTopUp:
		if err := s.checkProvider(momoclient.ProductCollection); err != nil {
			return nil, err
		}
		return s.provider.RequestToPayStatus(ctx, referenceID)
	case domain.KindWithdrawal:
		if err := s.checkProvider(momoclient.ProductDisbursement); err != nil {
			return nil, err
		}
		return s.provider.TransferStatus(ctx, referenceID)
	default:
		return nil, fmt.Errorf("unknown payment kind %q", kind)
	}
}

func statusUpdateFromProvider(remote *momoclient.StatusResponse) domain.PaymentStatusUpdate {
	status := domain.NormalizeStatus(remote.Status)
	update := domain.PaymentStatusUpdate{Status: &status}
	if remote.FinancialTransactionID != "" {
		ftid := remote.FinancialTransactionID
		update.FinancialTransactionID = &ftid
	}
	if reason := remote.Reason.String(); reason != "" {
		update.FailureReason = &reason
	}
	return update
}

// ReconcilePending sweeps unsettled payments older than minAge. Non-terminal
// payments are polled and terminal results go through the same settlement path
// as callbacks; those still unresolved after the pending expiry are failed with
// reason "expired". SUCCESSFUL payments confirmed by a status check but not yet
// in the ledger are booked without another poll.
func (s *Service) ReconcilePending(ctx context.Context, minAge time.Duration, limit int) (*domain.ReconcileSummary, error) {
	now := s.now()
	summary := &domain.ReconcileSummary{}

	for _, kind := range []domain.PaymentKind{domain.KindTopUp, domain.KindWithdrawal} {
		unsettled, err := s.repo.ListUnsettledPayments(ctx, kind, now.Add(-minAge), limit)
		if err != nil {
			return summary, fmt.Errorf("list unsettled %s: %w", kind, err)
		}

		for _, p := range unsettled {
			summary.Checked++
			update, ok := s.sweepUpdate(ctx, kind, p, now, summary)
			if !ok {
				continue
			}

			outcome, err := s.settle(ctx, kind, p.ReferenceID, update)
			if err != nil {
				summary.Errors++
				s.logger.Error("failed to settle payment",
					zap.String("kind", string(kind)),
					zap.String("reference_id", p.ReferenceID),
					zap.Error(err))
				continue
			}
			summary.Updated++
			if outcome.Ledger != nil {
				summary.Booked++
			}
		}
	}

	s.logger.Info("pending reconciliation finished",
		zap.Int("checked", summary.Checked),
		zap.Int("updated", summary.Updated),
		zap.Int("expired", summary.Expired),
		zap.Int("booked", summary.Booked),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

// sweepUpdate decides what the sweep applies to one payment. ok is false when the
// payment is left as it is for now.
func (s *Service) sweepUpdate(ctx context.Context, kind domain.PaymentKind, p domain.Payment, now time.Time, summary *domain.ReconcileSummary) (domain.PaymentStatusUpdate, bool) {
	if p.Status == domain.StatusSuccessful {
		successful := domain.StatusSuccessful
		return domain.PaymentStatusUpdate{Status: &successful}, true
	}

	expired := now.Sub(p.CreatedAt) >= s.opts.PendingExpiry
	remote, err := s.providerStatus(ctx, kind, p.ReferenceID)
	if err != nil && !expired {
		summary.Errors++
		s.logger.Warn("pending status poll failed",
			zap.String("kind", string(kind)),
			zap.String("reference_id", p.ReferenceID),
			zap.Error(err))
		return domain.PaymentStatusUpdate{}, false
	}
	if err == nil {
		if update := statusUpdateFromProvider(remote); update.Status.IsTerminal() {
			return update, true
		}
	}
	if !expired {
		return domain.PaymentStatusUpdate{}, false
	}

	failed := domain.StatusFailed
	reason := ExpiredReason
	summary.Expired++
	return domain.PaymentStatusUpdate{Status: &failed, FailureReason: &reason}, true
}

// settle applies a terminal or intermediate status through the callback path and
// fires the success side effects when a ledger row was booked.
func (s *Service) settle(ctx context.Context, kind domain.PaymentKind, referenceID string, update domain.PaymentStatusUpdate) (*store.CallbackOutcome, error) {
	outcome, err := s.repo.ApplyPaymentCallback(ctx, kind, referenceID, update)
	if err != nil {
		return nil, err
	}
	if outcome.Ledger != nil {
		s.logger.Info("ledger transaction booked",
			zap.String("kind", string(kind)),
			zap.String("reference_id", referenceID),
			zap.String("transaction_id", outcome.Ledger.ID.String()))
		s.publishLedgerEvent(ctx, outcome.Ledger)
		s.notify(ctx, outcome.Payment.Phone, successMessage(outcome.Payment))
	}
	return outcome, nil
}

func successMessage(p *domain.Payment) string {
	amount := formatAmount(p.Amount, p.Currency)
	if p.Kind == domain.KindWithdrawal {
		return fmt.Sprintf("Your withdrawal of %s was successful.", amount)
	}
	return fmt.Sprintf("Your top-up of %s was successful and has been added to your savings.", amount)
}
