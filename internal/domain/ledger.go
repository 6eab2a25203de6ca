package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger transaction types.
const (
	LedgerTypeDeposit     = "deposit"
	LedgerTypeWithdrawal  = "withdrawal"
	LedgerTypeAutoSavings = "auto_savings"
)

// Ledger transaction methods.
const (
	LedgerMethodMomo      = "momo"
	LedgerMethodScheduled = "scheduled"
)

// LedgerStatusSuccess is the only status a ledger row is ever written with.
const LedgerStatusSuccess = "success"

// LedgerTransaction is the append-only record of completed money movement.
// ReferenceID is unique, so one provider event books at most one row.
type LedgerTransaction struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	GoalID      *uuid.UUID      `json:"goal_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Type        string          `json:"type"`
	Method      string          `json:"method"`
	Status      string          `json:"status"`
	ReferenceID *string         `json:"reference_id,omitempty"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LedgerForPayment derives the ledger row booked when a payment succeeds.
func LedgerForPayment(p *Payment) *LedgerTransaction {
	ledgerType := LedgerTypeDeposit
	description := "MoMo top-up"
	if p.Kind == KindWithdrawal {
		ledgerType = LedgerTypeWithdrawal
		description = "MoMo withdrawal"
	}
	if p.Note != nil && *p.Note != "" {
		description = *p.Note
	}
	ref := p.ReferenceID
	return &LedgerTransaction{
		ID:          uuid.New(),
		UserID:      p.UserID,
		GoalID:      p.GoalID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Type:        ledgerType,
		Method:      LedgerMethodMomo,
		Status:      LedgerStatusSuccess,
		ReferenceID: &ref,
		Description: description,
	}
}

// SavingsEntry is a contribution towards a goal, written by the auto-savings job.
type SavingsEntry struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	GoalID            *uuid.UUID      `json:"goal_id,omitempty"`
	ScheduledSavingID *uuid.UUID      `json:"scheduled_saving_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Source            string          `json:"source"`
	CreatedAt         time.Time       `json:"created_at"`
}
