package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"revenue/internal/cache"
	"revenue/internal/cli"
	apphttp "revenue/internal/http"
	"revenue/internal/log"
	"revenue/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// A typed nil cache would pass the nil check inside the service.
	var reports *services.ReportService
	cacheManager := cache.NewManager()
	if cfg.ReportCacheSize > 0 {
		reportCache := services.NewReportCache(cfg.ReportCacheSize, cfg.ReportCacheTTL)
		cacheManager.Register(reportCache)
		cacheManager.StartCleanup(cfg.ReportCacheTTL)
		reports = services.NewReportService(repo, reportCache)
	} else {
		reports = services.NewReportService(repo, nil)
	}

	var ledger *services.RevenueService
	if amqpClient := cli.InitAMQP(logger, cfg, false); amqpClient != nil {
		ledger = services.NewRevenueService(repo, amqpClient, reports, cfg.DefaultPageLimit)
	} else {
		ledger = services.NewRevenueService(repo, nil, reports, cfg.DefaultPageLimit)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	}, ledger, reports)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close resources", log.FieldError, err)
		}
	})

	logger.Info("Starting revenue server",
		"port", cfg.Port,
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", cfg.AMQPEnabled(),
		"report_cache_size", cfg.ReportCacheSize,
		"rate_limit_per_minute", cfg.RateLimitPerMinute)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	metrics := srv.Metrics()
	logger.Info("Server stopped gracefully",
		"requests", metrics.TotalRequests,
		"panics", metrics.Panics)
}
