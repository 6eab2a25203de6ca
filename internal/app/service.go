/**
 * @description
 * This file contains the core business logic for the momo-service. The Service
 * struct orchestrates MTN MoMo top-ups and withdrawals, status reconciliation,
 * provider callbacks and the auto-savings run, coordinating between the
 * repository, the MoMo client, the notifier and the event bus.
 *
 * @dependencies
 * - github.com/shopspring/decimal: money amounts.
 * - go.uber.org/zap: structured logging.
 * - internal/domain, internal/store: domain models and data access.
 * - pkg/momoclient, pkg/rabbitmq: provider API and event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/store"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/momoclient"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/rabbitmq"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrAmountTooLarge        = errors.New("amount exceeds the maximum allowed per transaction")
	ErrInvalidPhone          = errors.New("a valid phone number is required")
	ErrMissingReferenceID    = errors.New("referenceId is required")
	ErrInvalidPayload        = errors.New("invalid callback payload")
	ErrProviderNotConfigured = errors.New("mobile money provider is not configured")
	ErrRateLimited           = errors.New("too many payment requests")
)

// RateLimitError carries the retry delay of a rejected initiation.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s; retry after %ds", ErrRateLimited.Error(), e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// PaymentProvider is the subset of the MoMo API the service drives.
type PaymentProvider interface {
	RequestToPay(ctx context.Context, referenceID string, req momoclient.PaymentRequest) error
	Transfer(ctx context.Context, referenceID string, req momoclient.PaymentRequest) error
	RequestToPayStatus(ctx context.Context, referenceID string) (*momoclient.StatusResponse, error)
	TransferStatus(ctx context.Context, referenceID string) (*momoclient.StatusResponse, error)
	CheckCredentials(product momoclient.Product) error
}

// Notifier delivers a best-effort text message to a phone number.
type Notifier interface {
	Notify(ctx context.Context, phone, message string) error
}

// InitiationCounter counts a user's payment initiations of one kind within a
// fixed window and reports how long until the window closes.
type InitiationCounter interface {
	CountInitiation(ctx context.Context, kind domain.PaymentKind, userID uuid.UUID, window time.Duration) (count int, retryAfter time.Duration, err error)
}

// Options tunes the service. Zero values fall back to defaults in NewService.
type Options struct {
	Currency             string
	CountryCode          string
	MaxTransactionAmount decimal.Decimal
	InitiationRateLimit  int
	InitiationRateWindow time.Duration
	PendingExpiry        time.Duration
	Location             *time.Location
	Now                  func() time.Time
}

// Service provides the core business logic for mobile-money payments.
type Service struct {
	repo        store.Repository
	provider    PaymentProvider
	notifier    Notifier
	publisher   rabbitmq.Publisher
	initiations InitiationCounter
	logger      *zap.Logger
	opts        Options
}

// NewService creates a new momo service instance. notifier and publisher may be nil.
func NewService(repo store.Repository, provider PaymentProvider, notifier Notifier, publisher rabbitmq.Publisher, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Currency == "" {
		opts.Currency = "EUR"
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "250"
	}
	if opts.InitiationRateWindow <= 0 {
		opts.InitiationRateWindow = time.Minute
	}
	if opts.PendingExpiry <= 0 {
		opts.PendingExpiry = 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	return &Service{
		repo:      repo,
		provider:  provider,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger.Named("momo_service"),
		opts:      opts,
	}
}

// SetInitiationCounter enables per-user initiation limits.
func (s *Service) SetInitiationCounter(counter InitiationCounter) {
	s.initiations = counter
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

// notify sends a message and only logs failures.
func (s *Service) notify(ctx context.Context, phone, message string) {
	if s.notifier == nil || phone == "" {
		return
	}
	if err := s.notifier.Notify(ctx, phone, message); err != nil {
		s.logger.Warn("notification failed", zap.String("phone", maskPhone(phone)), zap.Error(err))
	}
}

// publishLedgerEvent announces a newly booked ledger row.
func (s *Service) publishLedgerEvent(ctx context.Context, tx *domain.LedgerTransaction) {
	if tx == nil {
		return
	}
	event := domain.NewLedgerTransactionEvent(tx)
	if err := s.publisher.Publish(ctx, domain.EventsExchange, domain.RoutingKeyLedgerTransactionNew, event); err != nil {
		s.logger.Warn("ledger event publish failed",
			zap.String("transaction_id", tx.ID.String()), zap.Error(err))
	}
}

func (s *Service) notifyOwner(ctx context.Context, userID uuid.UUID, message string) {
	phone, err := s.repo.FindUserPhone(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("phone lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return
	}
	s.notify(ctx, phone, message)
}

func formatAmount(amount decimal.Decimal, currency string) string {
	return amount.String() + " " + currency
}
