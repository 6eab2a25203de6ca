package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MomoCallback is the body MTN MoMo sends to the callback URL. It is also the
// audit row stored in momo_transactions.
type MomoCallback struct {
	ReferenceID            string            `json:"referenceId"`
	ExternalID             string            `json:"externalId,omitempty"`
	Status                 string            `json:"status"`
	Reason                 *CallbackReason   `json:"reason,omitempty"`
	FinancialTransactionID string            `json:"financialTransactionId,omitempty"`
	Amount                 string            `json:"amount,omitempty"`
	Currency               string            `json:"currency,omitempty"`
	Payer                  map[string]string `json:"payer,omitempty"`
	Payee                  map[string]string `json:"payee,omitempty"`
}

// CallbackReason accepts both the string and the {code,message} shapes MoMo uses.
type CallbackReason struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// String returns the most descriptive part of the reason.
func (r *CallbackReason) String() string {
	if r == nil {
		return ""
	}
	if r.Message != "" {
		return r.Message
	}
	return r.Code
}

// UnmarshalJSON lets the reason arrive as a bare string.
func (r *CallbackReason) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		r.Code = s
		return nil
	}
	type alias CallbackReason
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = CallbackReason(a)
	return nil
}

// CallbackRecord is one received callback as persisted for audit.
type CallbackRecord struct {
	ID                     uuid.UUID   `json:"id"`
	ReferenceID            string      `json:"reference_id"`
	Kind                   PaymentKind `json:"kind,omitempty"`
	Status                 string      `json:"status"`
	Reason                 *string     `json:"reason,omitempty"`
	FinancialTransactionID *string     `json:"financial_transaction_id,omitempty"`
	ExternalID             *string     `json:"external_id,omitempty"`
	RawPayload             []byte      `json:"raw_payload"`
	ReceivedAt             time.Time   `json:"received_at"`
}

// WebhookAck is the body returned after a callback is applied.
type WebhookAck struct {
	Success     bool          `json:"success"`
	ReferenceID string        `json:"referenceId"`
	Status      PaymentStatus `json:"status"`
}

// Routing keys and exchange used on the event bus.
const (
	EventsExchange                 = "savings_events"
	RoutingKeySMSRequested         = "notification.sms.requested"
	RoutingKeyLedgerTransactionNew = "ledger.transaction.created"
)

// SMSNotificationEvent asks the notification consumer to deliver a text message.
type SMSNotificationEvent struct {
	PhoneNumber string    `json:"phoneNumber"`
	Message     string    `json:"message"`
	RequestedAt time.Time `json:"requestedAt"`
}

// LedgerTransactionEvent is published after a ledger row is booked.
type LedgerTransactionEvent struct {
	TransactionID uuid.UUID  `json:"transaction_id"`
	UserID        uuid.UUID  `json:"user_id"`
	GoalID        *uuid.UUID `json:"goal_id,omitempty"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Type          string     `json:"type"`
	ReferenceID   string     `json:"reference_id"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewLedgerTransactionEvent builds the event for a booked ledger row.
func NewLedgerTransactionEvent(tx *LedgerTransaction) LedgerTransactionEvent {
	ref := ""
	if tx.ReferenceID != nil {
		ref = *tx.ReferenceID
	}
	created := tx.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return LedgerTransactionEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		GoalID:        tx.GoalID,
		Amount:        tx.Amount.StringFixed(2),
		Currency:      tx.Currency,
		Type:          tx.Type,
		ReferenceID:   ref,
		CreatedAt:     created,
	}
}
