/**
 * @description
 * PostgreSQL implementation of the Repository interface using pgx.
 *
 * @notes
 * - The pool runs in simple-protocol mode, so DATE parameters are passed as
 *   "2006-01-02" strings with an explicit ::date cast.
 * - Callback application and scheduled-saving execution each run inside a single
 *   database transaction so the status change and the ledger row commit together.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is the pgx-backed Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository on top of a pgx pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func tableForKind(kind domain.PaymentKind) (string, error) {
	switch kind {
	case domain.KindTopUp:
		return "topups", nil
	case domain.KindWithdrawal:
		return "withdrawals", nil
	default:
		return "", fmt.Errorf("unknown payment kind %q", kind)
	}
}

// paymentColumns returns the select list for a payment table. Both tables scan
// into the same struct; columns a table lacks are selected as typed NULLs.
func paymentColumns(kind domain.PaymentKind) string {
	const common = `id, user_id, reference_id, external_id, amount, currency, phone, status,
		financial_transaction_id, failure_reason`
	if kind == domain.KindWithdrawal {
		return common + `, ''::text AS payer_message, ''::text AS payee_note, goal_id, note, created_at, updated_at`
	}
	return common + `, COALESCE(payer_message, '') AS payer_message, COALESCE(payee_note, '') AS payee_note,
		NULL::uuid AS goal_id, NULL::text AS note, created_at, updated_at`
}

func scanPayment(row pgx.Row, kind domain.PaymentKind) (*domain.Payment, error) {
	var p domain.Payment
	var status string
	err := row.Scan(
		&p.ID, &p.UserID, &p.ReferenceID, &p.ExternalID, &p.Amount, &p.Currency, &p.Phone, &status,
		&p.FinancialTransactionID, &p.FailureReason, &p.PayerMessage, &p.PayeeNote, &p.GoalID, &p.Note,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Kind = kind
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}

func statusParam(s *domain.PaymentStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// CreatePayment inserts a new PENDING payment row.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = domain.StatusPending
	}

	var query string
	var args []interface{}
	switch p.Kind {
	case domain.KindTopUp:
		query = `
			INSERT INTO topups (id, user_id, reference_id, external_id, amount, currency, phone, status, payer_message, payee_note)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at, updated_at
		`
		args = []interface{}{p.ID, p.UserID, p.ReferenceID, p.ExternalID, p.Amount, p.Currency, p.Phone, string(p.Status), p.PayerMessage, p.PayeeNote}
	case domain.KindWithdrawal:
		query = `
			INSERT INTO withdrawals (id, user_id, reference_id, external_id, amount, currency, phone, status, goal_id, note)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at, updated_at
		`
		args = []interface{}{p.ID, p.UserID, p.ReferenceID, p.ExternalID, p.Amount, p.Currency, p.Phone, string(p.Status), p.GoalID, p.Note}
	default:
		return fmt.Errorf("unknown payment kind %q", p.Kind)
	}

	return r.db.QueryRow(ctx, query, args...).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// FindPaymentByReferenceID loads a payment by its provider reference id.
func (r *PostgresRepository) FindPaymentByReferenceID(ctx context.Context, kind domain.PaymentKind, referenceID string) (*domain.Payment, error) {
	table, err := tableForKind(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE reference_id = $1`, paymentColumns(kind), table)
	return scanPayment(r.db.QueryRow(ctx, query, referenceID), kind)
}

// UpdatePaymentStatus overwrites the provided fields and stamps updated_at.
func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, kind domain.PaymentKind, referenceID string, update domain.PaymentStatusUpdate) (*domain.Payment, error) {
	table, err := tableForKind(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET
			status = COALESCE($2, status),
			financial_transaction_id = COALESCE($3, financial_transaction_id),
			failure_reason = COALESCE($4, failure_reason),
			updated_at = NOW()
		WHERE reference_id = $1
		RETURNING %s
	`, table, paymentColumns(kind))
	row := r.db.QueryRow(ctx, query, referenceID, statusParam(update.Status), update.FinancialTransactionID, update.FailureReason)
	return scanPayment(row, kind)
}

// ApplyPaymentCallback locks the payment, applies the callback without leaving a
// terminal status for a non-terminal one, and books the ledger row when the
// resulting status is SUCCESSFUL. The ledger insert is a no-op when a row with the
// same reference id already exists.
func (r *PostgresRepository) ApplyPaymentCallback(ctx context.Context, kind domain.PaymentKind, referenceID string, update domain.PaymentStatusUpdate) (*CallbackOutcome, error) {
	table, err := tableForKind(kind)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	lockQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE reference_id = $1 FOR UPDATE`, paymentColumns(kind), table)
	current, err := scanPayment(tx.QueryRow(ctx, lockQuery, referenceID), kind)
	if err != nil {
		return nil, err
	}

	update = update.ResolveAgainst(current.Status)

	updateQuery := fmt.Sprintf(`
		UPDATE %s SET
			status = COALESCE($2, status),
			financial_transaction_id = COALESCE($3, financial_transaction_id),
			failure_reason = COALESCE($4, failure_reason),
			updated_at = NOW()
		WHERE reference_id = $1
		RETURNING %s
	`, table, paymentColumns(kind))
	updated, err := scanPayment(tx.QueryRow(ctx, updateQuery, referenceID, statusParam(update.Status), update.FinancialTransactionID, update.FailureReason), kind)
	if err != nil {
		return nil, err
	}

	outcome := &CallbackOutcome{Payment: updated}
	if updated.Status == domain.StatusSuccessful {
		ledger := domain.LedgerForPayment(updated)
		inserted, err := insertLedger(ctx, tx, ledger)
		if err != nil {
			return nil, fmt.Errorf("insert ledger transaction: %w", err)
		}
		if inserted {
			outcome.Ledger = ledger
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcome, nil
}

// insertLedger writes the ledger row unless one with the same reference id exists.
func insertLedger(ctx context.Context, tx pgx.Tx, l *domain.LedgerTransaction) (bool, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	query := `
		INSERT INTO transactions (id, user_id, goal_id, amount, currency, type, method, status, reference_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (reference_id) DO NOTHING
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query,
		l.ID, l.UserID, l.GoalID, l.Amount, l.Currency, l.Type, l.Method, l.Status, l.ReferenceID, l.Description,
	).Scan(&l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListUnsettledPayments returns rows created before olderThan that still need the
// sweep, oldest first: every non-terminal status, including UNKNOWN and
// passed-through provider values, and SUCCESSFUL rows without a ledger row.
func (r *PostgresRepository) ListUnsettledPayments(ctx context.Context, kind domain.PaymentKind, olderThan time.Time, limit int) ([]domain.Payment, error) {
	table, err := tableForKind(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s p
		WHERE p.created_at < $3
		  AND (
			p.status NOT IN ($1, $2)
			OR (p.status = $1 AND NOT EXISTS (
				SELECT 1 FROM transactions t WHERE t.reference_id = p.reference_id
			))
		  )
		ORDER BY p.created_at ASC
		LIMIT $4
	`, paymentColumns(kind), table)

	rows, err := r.db.Query(ctx, query, string(domain.StatusSuccessful), string(domain.StatusFailed), olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// RecordCallback appends a received callback to the audit table.
func (r *PostgresRepository) RecordCallback(ctx context.Context, rec *domain.CallbackRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	var kind *string
	if rec.Kind != "" {
		k := string(rec.Kind)
		kind = &k
	}
	payload := string(rec.RawPayload)
	if payload == "" {
		payload = "{}"
	}
	query := `
		INSERT INTO momo_transactions (id, reference_id, kind, status, reason, financial_transaction_id, external_id, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		RETURNING received_at
	`
	return r.db.QueryRow(ctx, query,
		rec.ID, rec.ReferenceID, kind, rec.Status, rec.Reason, rec.FinancialTransactionID, rec.ExternalID, payload,
	).Scan(&rec.ReceivedAt)
}

// FindUserPhone returns the phone on the user's profile, or "" when none is set.
func (r *PostgresRepository) FindUserPhone(ctx context.Context, userID uuid.UUID) (string, error) {
	var phone string
	err := r.db.QueryRow(ctx, `SELECT COALESCE(phone, '') FROM profiles WHERE id = $1`, userID).Scan(&phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return phone, nil
}

// ListDueScheduledSavings returns active rules whose next execution date is on or before today.
func (r *PostgresRepository) ListDueScheduledSavings(ctx context.Context, today time.Time) ([]domain.ScheduledSavingRule, error) {
	query := `
		SELECT id, user_id, goal_id, COALESCE(name, '') AS name, amount, frequency, next_execution_date,
		       is_active, last_executed_at, created_at, updated_at
		FROM scheduled_savings
		WHERE is_active = TRUE AND next_execution_date <= $1::date
		ORDER BY next_execution_date ASC, created_at ASC
	`
	rows, err := r.db.Query(ctx, query, today.Format(domain.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.ScheduledSavingRule
	for rows.Next() {
		var rule domain.ScheduledSavingRule
		if err := rows.Scan(
			&rule.ID, &rule.UserID, &rule.GoalID, &rule.Name, &rule.Amount, &rule.Frequency, &rule.NextExecutionDate,
			&rule.IsActive, &rule.LastExecutedAt, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ExecuteScheduledSaving claims the rule with a compare-and-swap on its observed
// next_execution_date, then writes the ledger and savings rows. Everything rolls
// back on error, leaving the rule due.
func (r *PostgresRepository) ExecuteScheduledSaving(ctx context.Context, exec ScheduleExecution) (ExecutionResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	claim, err := tx.Exec(ctx, `
		UPDATE scheduled_savings SET
			next_execution_date = $2::date,
			is_active = $3,
			last_executed_at = $4,
			updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE AND next_execution_date = $5::date
	`, exec.RuleID, exec.NextDate.Format(domain.DateLayout), exec.StayActive, exec.ExecutedAt, exec.ObservedDate.Format(domain.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("claim scheduled saving: %w", err)
	}
	if claim.RowsAffected() == 0 {
		return ExecutionClaimLost, nil
	}

	inserted, err := insertLedger(ctx, tx, exec.Ledger)
	if err != nil {
		return 0, fmt.Errorf("insert ledger transaction: %w", err)
	}
	if !inserted {
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		return ExecutionAlreadyBooked, nil
	}

	s := exec.Savings
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO savings (id, user_id, goal_id, scheduled_saving_id, amount, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, s.ID, s.UserID, s.GoalID, s.ScheduledSavingID, s.Amount, s.Source).Scan(&s.CreatedAt); err != nil {
		return 0, fmt.Errorf("insert savings entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return ExecutionApplied, nil
}
