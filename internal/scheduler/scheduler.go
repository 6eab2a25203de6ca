/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package scheduler

import (
	"context"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *zap.Logger
	config config.SchedulerConfig
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *zap.Logger, cfg config.SchedulerConfig) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns the number
// of jobs that were registered.
func (s *Scheduler) Start() int {
	registered := 0

	if _, err := s.cron.AddFunc(s.config.AutoSavingsSchedule, s.jobs.RunAutoSavings); err != nil {
		s.logger.Error("failed to schedule auto-savings job", zap.String("schedule", s.config.AutoSavingsSchedule), zap.Error(err))
	} else {
		registered++
		s.logger.Info("scheduled auto-savings job", zap.String("schedule", s.config.AutoSavingsSchedule))
	}

	if _, err := s.cron.AddFunc(s.config.ReconcileSchedule, s.jobs.ReconcilePendingPayments); err != nil {
		s.logger.Error("failed to schedule payment reconciliation job", zap.String("schedule", s.config.ReconcileSchedule), zap.Error(err))
	} else {
		registered++
		s.logger.Info("scheduled payment reconciliation job", zap.String("schedule", s.config.ReconcileSchedule))
	}

	s.cron.Start()
	return registered
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
