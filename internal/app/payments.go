package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/momoclient"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InitiateTopUp asks the user's wallet to approve a collection and records the
// PENDING top-up. The provider has accepted the request when this returns nil.
func (s *Service) InitiateTopUp(ctx context.Context, userID uuid.UUID, req domain.TopUpRequest) (*domain.Payment, error) {
	phone, err := s.validateInitiation(req.Amount, req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if err := s.checkProvider(momoclient.ProductCollection); err != nil {
		return nil, err
	}
	if err := s.checkInitiationLimit(ctx, domain.KindTopUp, userID); err != nil {
		return nil, err
	}

	payerMessage := strings.TrimSpace(req.PayerMessage)
	if payerMessage == "" {
		payerMessage = "Savings top-up"
	}
	payeeNote := strings.TrimSpace(req.PayeeNote)
	if payeeNote == "" {
		payeeNote = "She Saves top-up"
	}

	payment := &domain.Payment{
		ID:           uuid.New(),
		Kind:         domain.KindTopUp,
		UserID:       userID,
		ReferenceID:  uuid.New().String(),
		ExternalID:   uuid.New().String(),
		Amount:       req.Amount,
		Currency:     s.opts.Currency,
		Phone:        phone,
		Status:       domain.StatusPending,
		PayerMessage: payerMessage,
		PayeeNote:    payeeNote,
	}

	err = s.provider.RequestToPay(ctx, payment.ReferenceID, momoclient.PaymentRequest{
		Amount:       payment.Amount.String(),
		Currency:     payment.Currency,
		ExternalID:   payment.ExternalID,
		Payer:        momoclient.MSISDN(phone),
		PayerMessage: payerMessage,
		PayeeNote:    payeeNote,
	})
	if err != nil {
		s.logger.Warn("request to pay rejected",
			zap.String("reference_id", payment.ReferenceID),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("request to pay: %w", err)
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		// The provider already holds this reference id; it stays reconcilable.
		s.logger.Error("failed to persist accepted top-up",
			zap.String("reference_id", payment.ReferenceID),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("persist top-up %s: %w", payment.ReferenceID, err)
	}

	s.logger.Info("top-up initiated",
		zap.String("reference_id", payment.ReferenceID),
		zap.String("user_id", userID.String()),
		zap.String("amount", payment.Amount.String()))

	s.notify(ctx, phone, fmt.Sprintf("Top-up of %s initiated. Approve the request on your phone to complete it.",
		formatAmount(payment.Amount, payment.Currency)))

	return payment, nil
}

// InitiateWithdrawal sends money from the disbursement account to the user's
// wallet and records the PENDING withdrawal.
func (s *Service) InitiateWithdrawal(ctx context.Context, userID uuid.UUID, req domain.WithdrawalRequest) (*domain.Payment, error) {
	phone, err := s.validateInitiation(req.Amount, req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if err := s.checkProvider(momoclient.ProductDisbursement); err != nil {
		return nil, err
	}
	if err := s.checkInitiationLimit(ctx, domain.KindWithdrawal, userID); err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:          uuid.New(),
		Kind:        domain.KindWithdrawal,
		UserID:      userID,
		ReferenceID: uuid.New().String(),
		ExternalID:  uuid.New().String(),
		Amount:      req.Amount,
		Currency:    s.opts.Currency,
		Phone:       phone,
		Status:      domain.StatusPending,
		GoalID:      req.GoalID,
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		payment.Note = &note
	}

	payeeNote := "She Saves withdrawal"
	if payment.Note != nil {
		payeeNote = *payment.Note
	}

	err = s.provider.Transfer(ctx, payment.ReferenceID, momoclient.PaymentRequest{
		Amount:       payment.Amount.String(),
		Currency:     payment.Currency,
		ExternalID:   payment.ExternalID,
		Payee:        momoclient.MSISDN(phone),
		PayerMessage: "Savings withdrawal",
		PayeeNote:    payeeNote,
	})
	if err != nil {
		s.logger.Warn("transfer rejected",
			zap.String("reference_id", payment.ReferenceID),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("transfer: %w", err)
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		s.logger.Error("failed to persist accepted withdrawal",
			zap.String("reference_id", payment.ReferenceID),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("persist withdrawal %s: %w", payment.ReferenceID, err)
	}

	s.logger.Info("withdrawal initiated",
		zap.String("reference_id", payment.ReferenceID),
		zap.String("user_id", userID.String()),
		zap.String("amount", payment.Amount.String()))

	s.notify(ctx, phone, fmt.Sprintf("Withdrawal of %s is being processed to your mobile money wallet.",
		formatAmount(payment.Amount, payment.Currency)))

	return payment, nil
}

// validateInitiation checks amount and phone and returns the normalized MSISDN.
func (s *Service) validateInitiation(amount decimal.Decimal, rawPhone string) (string, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	if s.opts.MaxTransactionAmount.IsPositive() && amount.GreaterThan(s.opts.MaxTransactionAmount) {
		return "", ErrAmountTooLarge
	}
	return NormalizeMSISDN(rawPhone, s.opts.CountryCode)
}

func (s *Service) checkProvider(product momoclient.Product) error {
	if err := s.provider.CheckCredentials(product); err != nil {
		if errors.Is(err, momoclient.ErrMissingCredentials) {
			return fmt.Errorf("%w: %s", ErrProviderNotConfigured, product)
		}
		return err
	}
	return nil
}

func (s *Service) checkInitiationLimit(ctx context.Context, kind domain.PaymentKind, userID uuid.UUID) error {
	if s.initiations == nil || s.opts.InitiationRateLimit <= 0 {
		return nil
	}
	count, retryAfter, err := s.initiations.CountInitiation(ctx, kind, userID, s.opts.InitiationRateWindow)
	if err != nil {
		// Limiter outages must not block payments.
		s.logger.Warn("initiation counter unavailable", zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}
	if count > s.opts.InitiationRateLimit {
		return &RateLimitError{RetryAfterSeconds: retryAfterSeconds(retryAfter)}
	}
	return nil
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
