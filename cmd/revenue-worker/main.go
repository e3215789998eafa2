package main

import (
	"context"
	"errors"
	"os"
	"time"

	"revenue/internal/cli"
	"revenue/internal/log"
	"revenue/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	logger.Info("Starting revenue-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Without a broker the worker still runs the periodic audit.
	amqpClient := cli.InitAMQP(logger, cfg, false)

	reconciler := worker.NewReconciler(repo, worker.ReconcilerConfig{
		AuditInterval: cfg.AuditInterval,
	}, logger.WithComponent(log.ComponentWorker))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := reconciler.Stop(ctx); err != nil {
			logger.Error("Failed to stop reconciler", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", log.FieldError, err)
			}
		}
	})

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconciler", log.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeRevenueEvents(ctx, reconciler.HandleEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("Skipping event consumption, running periodic audits only")
	}

	logger.Info("Revenue worker started",
		"audit_interval", cfg.AuditInterval,
		"amqp_enabled", amqpClient != nil)

	cli.WaitForShutdown(ctx, done)

	stats := reconciler.Stats()
	logger.Info("Revenue worker stopped",
		"audits", stats.Audits,
		"drifted", stats.Drifted)
}
