/**
 * @description
 * Scheduled job implementations for the scheduler process. Each job calls an
 * internal momo-service trigger and logs the outcome.
 */
package scheduler

import (
	"context"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"go.uber.org/zap"
)

// PaymentsClient defines the interface for communicating with the momo-service.
type PaymentsClient interface {
	ExecuteAutoSavings(ctx context.Context) (*domain.AutoSavingsSummary, error)
	ReconcilePayments(ctx context.Context) (*domain.ReconcileSummary, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	client PaymentsClient
	logger *zap.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(client PaymentsClient, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{client: client, logger: logger}
}

// RunAutoSavings triggers the daily auto-savings execution.
func (j *Jobs) RunAutoSavings() {
	j.logger.Info("starting auto-savings job")
	ctx := context.Background()

	summary, err := j.client.ExecuteAutoSavings(ctx)
	if err != nil {
		j.logger.Error("failed to execute auto-savings", zap.Error(err))
		return
	}

	if summary.Errors > 0 {
		j.logger.Warn("auto-savings finished with rule errors",
			zap.Int("processed", summary.Processed),
			zap.Int("errors", summary.Errors))
	}
	j.logger.Info("auto-savings job finished",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped))
}

// ReconcilePendingPayments polls the provider for stale PENDING payments.
func (j *Jobs) ReconcilePendingPayments() {
	j.logger.Info("starting payment reconciliation job")
	ctx := context.Background()

	summary, err := j.client.ReconcilePayments(ctx)
	if err != nil {
		j.logger.Error("failed to reconcile pending payments", zap.Error(err))
		return
	}

	j.logger.Info("payment reconciliation job finished",
		zap.Int("checked", summary.Checked),
		zap.Int("updated", summary.Updated),
		zap.Int("expired", summary.Expired),
		zap.Int("errors", summary.Errors))
}
