package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const savingsSourceAutoSavings = "auto_savings"

// ExecuteAutoSavings credits every active rule due on or before today in the
// business timezone. Rules are handled independently: a failed rule keeps its
// date and stays due, and the run continues with the next one.
func (s *Service) ExecuteAutoSavings(ctx context.Context) (*domain.AutoSavingsSummary, error) {
	now := s.now()
	today := domain.LocalMidnight(now, s.opts.Location)

	rules, err := s.repo.ListDueScheduledSavings(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled savings: %w", err)
	}

	s.logger.Info("auto-savings run started",
		zap.String("today", today.Format(domain.DateLayout)),
		zap.Int("due", len(rules)))

	summary := &domain.AutoSavingsSummary{
		Success:   true,
		Processed: len(rules),
		Results:   make([]domain.AutoSavingsResult, 0, len(rules)),
	}

	for _, rule := range rules {
		result := s.executeRule(ctx, rule, now)
		switch result.Status {
		case domain.AutoSavingsSucceeded:
			summary.Succeeded++
		case domain.AutoSavingsAlreadyProcessed:
			summary.Skipped++
		default:
			summary.Errors++
		}
		summary.Results = append(summary.Results, result)
	}

	s.logger.Info("auto-savings run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

func (s *Service) executeRule(ctx context.Context, rule domain.ScheduledSavingRule, now time.Time) domain.AutoSavingsResult {
	result := domain.AutoSavingsResult{
		RuleID: rule.ID,
		UserID: rule.UserID,
		Amount: rule.Amount.String(),
	}
	logger := s.logger.With(zap.String("rule_id", rule.ID.String()), zap.String("user_id", rule.UserID.String()))

	freq, ok := domain.ParseFrequency(rule.Frequency)
	if !ok {
		result.Status = domain.AutoSavingsFailed
		result.Error = fmt.Sprintf("unsupported frequency %q", rule.Frequency)
		logger.Warn("skipping rule with unsupported frequency", zap.String("frequency", rule.Frequency))
		return result
	}
	if !rule.Amount.IsPositive() {
		result.Status = domain.AutoSavingsFailed
		result.Error = ErrInvalidAmount.Error()
		logger.Warn("skipping rule with non-positive amount", zap.String("amount", rule.Amount.String()))
		return result
	}

	observed := rule.NextExecutionDate
	next, active := domain.NextSchedule(observed, freq)
	reference := domain.AutoSavingsReference(rule.ID, observed)

	description := "Auto-savings"
	if name := strings.TrimSpace(rule.Name); name != "" {
		description = "Auto-savings: " + name
	}
	ruleID := rule.ID
	ledger := &domain.LedgerTransaction{
		ID:          uuid.New(),
		UserID:      rule.UserID,
		GoalID:      rule.GoalID,
		Amount:      rule.Amount,
		Currency:    s.opts.Currency,
		Type:        domain.LedgerTypeAutoSavings,
		Method:      domain.LedgerMethodScheduled,
		Status:      domain.LedgerStatusSuccess,
		ReferenceID: &reference,
		Description: description,
	}
	savings := &domain.SavingsEntry{
		ID:                uuid.New(),
		UserID:            rule.UserID,
		GoalID:            rule.GoalID,
		ScheduledSavingID: &ruleID,
		Amount:            rule.Amount,
		Source:            savingsSourceAutoSavings,
	}

	outcome, err := s.repo.ExecuteScheduledSaving(ctx, store.ScheduleExecution{
		RuleID:       rule.ID,
		ObservedDate: observed,
		NextDate:     next,
		StayActive:   active,
		ExecutedAt:   now,
		Savings:      savings,
		Ledger:       ledger,
	})
	if err != nil {
		result.Status = domain.AutoSavingsFailed
		result.Error = err.Error()
		logger.Error("auto-savings execution failed", zap.Error(err))
		return result
	}

	switch outcome {
	case store.ExecutionClaimLost, store.ExecutionAlreadyBooked:
		result.Status = domain.AutoSavingsAlreadyProcessed
		logger.Info("rule already processed for date", zap.String("date", observed.Format(domain.DateLayout)))
		return result
	}

	result.Status = domain.AutoSavingsSucceeded
	if active {
		result.NextExecutionDate = next.Format(domain.DateLayout)
	}
	logger.Info("auto-savings executed",
		zap.String("amount", rule.Amount.String()),
		zap.String("next_execution_date", result.NextExecutionDate),
		zap.Bool("active", active))

	s.publishLedgerEvent(ctx, ledger)
	s.notifyOwner(ctx, rule.UserID, fmt.Sprintf("Auto-savings of %s was added to your savings.",
		formatAmount(rule.Amount, s.opts.Currency)))
	return result
}
