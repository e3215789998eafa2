// Package cli consolidates the start-up steps shared by cmd/revenue,
// cmd/revenue-worker and cmd/revenue-check.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"revenue/internal/amqp"
	"revenue/internal/config"
	"revenue/internal/log"
	"revenue/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as slog's default. Unknown levels fall back to info.
func SetupLogger(level, format string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	logger := log.New(log.Config{Level: lvl, Format: format, Output: os.Stdout})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "level", level)
	}
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration or exits on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens and migrates the ledger or exits.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// InitAMQP connects to the broker, returning nil when AMQP is disabled or
// unreachable and required is false.
func InitAMQP(logger *log.Logger, cfg *config.Config, required bool) *amqp.Client {
	if !cfg.AMQPEnabled() {
		if required {
			logger.Error("AMQP_URL is required")
			os.Exit(1)
		}
		logger.Info("AMQP disabled, revenue events will not be published")
		return nil
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		if required {
			logger.Error("Failed to connect to AMQP", log.FieldError, err)
			os.Exit(1)
		}
		logger.Warn("Failed to connect to AMQP, continuing without events", log.FieldError, err)
		return nil
	}
	logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM. cleanup
// runs with a deadline of timeout before done is closed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the signal context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
