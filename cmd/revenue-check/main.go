// Command revenue-check loads a year from the revenue API, compares the
// ledger against the monthly series and the yearly summary, and prints the
// consistency report as JSON. It exits with status 2 when the sources
// disagree.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"revenue/internal/cli"
	"revenue/internal/client"
	"revenue/internal/dashboard"
	"revenue/internal/log"
)

func main() {
	year := flag.Int("year", time.Now().Year(), "year to check")
	exportPath := flag.String("export", "", "write the loaded ledger as JSON to this file")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	api := client.New(cfg.APIBaseURL,
		client.WithToken(cfg.APIToken),
		client.WithLogger(logger.WithComponent(log.ComponentClient)))
	store := dashboard.NewStore(api,
		dashboard.WithYear(*year),
		dashboard.WithLogger(logger.WithComponent(log.ComponentDashboard)))

	report, err := store.RefreshAll(ctx, *year)
	if err != nil {
		logger.Error("Refresh failed", log.FieldYear, *year, log.FieldError, err)
		for slot, slotErr := range store.Errors() {
			logger.Error("Slot failed", "slot", slot.String(), log.FieldError, slotErr)
		}
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("Failed to write report", log.FieldError, err)
		os.Exit(1)
	}

	if *exportPath != "" {
		data, err := store.ExportJSON(dashboard.Filter{})
		if err != nil {
			logger.Error("Export failed", log.FieldError, err)
			os.Exit(1)
		}
		if err := os.WriteFile(*exportPath, data, 0o644); err != nil {
			logger.Error("Failed to write export", "path", *exportPath, log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Export written", "path", *exportPath, log.FieldCount, len(store.Revenues()))
	}

	if !report.Consistent() {
		logger.Warn("Revenue sources disagree", log.FieldYear, *year, log.FieldCount, len(report.Discrepancies))
		os.Exit(2)
	}
}
