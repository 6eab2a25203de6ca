/**
 * @description
 * This file defines the core payment models for the momo-service: top-ups
 * (collections / request-to-pay) and withdrawals (disbursement transfers) made
 * through MTN Mobile Money, together with their status lifecycle.
 *
 * @notes
 * - A top-up and a withdrawal share one shape; Kind selects the backing table.
 * - Records are never deleted. They move from PENDING to a terminal status via
 *   polling (status reconciliation) or provider callbacks.
 */
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentKind distinguishes collection (top-up) from disbursement (withdrawal) records.
type PaymentKind string

const (
	KindTopUp      PaymentKind = "topup"
	KindWithdrawal PaymentKind = "withdrawal"
)

// PaymentStatus mirrors the status values reported by the MoMo API.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusSuccessful PaymentStatus = "SUCCESSFUL"
	StatusFailed     PaymentStatus = "FAILED"
	StatusUnknown    PaymentStatus = "UNKNOWN"
)

// IsTerminal reports whether no further provider-side transition is expected.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

// ResolveCallbackStatus returns the status a record takes when a callback reports
// incoming. SUCCESSFUL is final because the ledger row is already booked, and no
// terminal record moves back to a non-terminal status. A FAILED record may still
// become SUCCESSFUL when the provider settles late.
func ResolveCallbackStatus(current, incoming PaymentStatus) PaymentStatus {
	if current == StatusSuccessful {
		return current
	}
	if current.IsTerminal() && !incoming.IsTerminal() {
		return current
	}
	return incoming
}

// NormalizeStatus maps a raw provider status onto the local enum. Known values are
// upper-cased, an empty value becomes UNKNOWN and anything else is passed through.
func NormalizeStatus(raw string) PaymentStatus {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StatusUnknown
	}
	switch upper := strings.ToUpper(trimmed); upper {
	case "SUCCESSFUL", "SUCCESS":
		return StatusSuccessful
	case "FAILED", "FAILURE", "REJECTED":
		return StatusFailed
	case "PENDING", "ONGOING":
		return StatusPending
	case "UNKNOWN":
		return StatusUnknown
	default:
		return PaymentStatus(trimmed)
	}
}

// Payment is a single top-up or withdrawal attempt keyed by its provider reference id.
type Payment struct {
	ID                     uuid.UUID       `json:"id"`
	Kind                   PaymentKind     `json:"kind"`
	UserID                 uuid.UUID       `json:"user_id"`
	ReferenceID            string          `json:"reference_id"`
	ExternalID             string          `json:"external_id"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	Phone                  string          `json:"phone"`
	Status                 PaymentStatus   `json:"status"`
	FinancialTransactionID *string         `json:"financial_transaction_id,omitempty"`
	FailureReason          *string         `json:"failure_reason,omitempty"`
	PayerMessage           string          `json:"payer_message,omitempty"`
	PayeeNote              string          `json:"payee_note,omitempty"`
	GoalID                 *uuid.UUID      `json:"goal_id,omitempty"`
	Note                   *string         `json:"note,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// PaymentStatusUpdate carries the fields overwritten on a payment record. Nil
// pointers leave the stored value untouched.
type PaymentStatusUpdate struct {
	Status                 *PaymentStatus
	FinancialTransactionID *string
	FailureReason          *string
}

// ResolveAgainst adapts a callback update to the stored status. A SUCCESSFUL
// record keeps its status and takes no failure reason; only metadata changes.
func (u PaymentStatusUpdate) ResolveAgainst(current PaymentStatus) PaymentStatusUpdate {
	if u.Status != nil {
		resolved := ResolveCallbackStatus(current, *u.Status)
		u.Status = &resolved
	}
	if current == StatusSuccessful {
		u.FailureReason = nil
	}
	return u
}

// TopUpRequest is the body accepted by the top-up initiation endpoint.
type TopUpRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	PhoneNumber  string          `json:"phone_number"`
	PayerMessage string          `json:"payer_message,omitempty"`
	PayeeNote    string          `json:"payee_note,omitempty"`
}

// WithdrawalRequest is the body accepted by the withdrawal initiation endpoint.
type WithdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number"`
	GoalID      *uuid.UUID      `json:"goal_id,omitempty"`
	Note        string          `json:"note,omitempty"`
}

// PaymentInitiationResponse is returned once the provider has accepted a request.
type PaymentInitiationResponse struct {
	ReferenceID string        `json:"referenceId"`
	Status      PaymentStatus `json:"status"`
	Amount      string        `json:"amount"`
	Currency    string        `json:"currency"`
}

// PaymentStatusResponse is returned by the status endpoints.
type PaymentStatusResponse struct {
	ReferenceID            string        `json:"referenceId"`
	Status                 PaymentStatus `json:"status"`
	FinancialTransactionID *string       `json:"financialTransactionId,omitempty"`
	Reason                 *string       `json:"reason,omitempty"`
}
