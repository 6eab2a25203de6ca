/**
 * @description
 * This file defines the Repository interface, the contract for all data access
 * required by the momo-service: pending payment records, the callback audit trail,
 * the append-only ledger and scheduled savings rules.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
)

// CallbackOutcome is the result of applying a provider callback to a payment.
type CallbackOutcome struct {
	Payment *domain.Payment
	// Ledger is set only when this call inserted the ledger row.
	Ledger *domain.LedgerTransaction
}

// ScheduleExecution describes one claim-and-credit unit of the auto-savings job.
type ScheduleExecution struct {
	RuleID       uuid.UUID
	ObservedDate time.Time
	NextDate     time.Time
	StayActive   bool
	ExecutedAt   time.Time
	Savings      *domain.SavingsEntry
	Ledger       *domain.LedgerTransaction
}

// ExecutionResult reports how a ScheduleExecution ended.
type ExecutionResult int

const (
	// ExecutionApplied means the rule was claimed and both rows were written.
	ExecutionApplied ExecutionResult = iota
	// ExecutionClaimLost means another run advanced the rule first.
	ExecutionClaimLost
	// ExecutionAlreadyBooked means the ledger row for this date exists; the rule was advanced without a new credit.
	ExecutionAlreadyBooked
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Payment methods
	CreatePayment(ctx context.Context, p *domain.Payment) error
	FindPaymentByReferenceID(ctx context.Context, kind domain.PaymentKind, referenceID string) (*domain.Payment, error)
	UpdatePaymentStatus(ctx context.Context, kind domain.PaymentKind, referenceID string, update domain.PaymentStatusUpdate) (*domain.Payment, error)
	ApplyPaymentCallback(ctx context.Context, kind domain.PaymentKind, referenceID string, update domain.PaymentStatusUpdate) (*CallbackOutcome, error)
	ListUnsettledPayments(ctx context.Context, kind domain.PaymentKind, olderThan time.Time, limit int) ([]domain.Payment, error)

	// Callback audit
	RecordCallback(ctx context.Context, rec *domain.CallbackRecord) error

	// Profiles
	FindUserPhone(ctx context.Context, userID uuid.UUID) (string, error)

	// Scheduled savings
	ListDueScheduledSavings(ctx context.Context, today time.Time) ([]domain.ScheduledSavingRule, error)
	ExecuteScheduledSaving(ctx context.Context, exec ScheduleExecution) (ExecutionResult, error)
}
