/**
 * @description
 * This is the main entry point for the scheduler. It is a non-HTTP, long-running
 * process that triggers the momo-service auto-savings run and the pending
 * payment reconciliation on cron schedules.
 */
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/config"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/scheduler"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/paymentsclient"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadSchedulerConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	client := paymentsclient.NewClient(cfg.PaymentsServiceURL, cfg.InternalAPIKey)
	jobs := scheduler.NewJobs(client, logger)
	s := scheduler.NewScheduler(jobs, logger, *cfg)

	if registered := s.Start(); registered == 0 {
		logger.Fatal("no jobs could be scheduled")
	}
	logger.Info("scheduler started", zap.String("payments_service_url", cfg.PaymentsServiceURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := s.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped gracefully")
}
