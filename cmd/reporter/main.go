// Command reporter runs one daily reconciliation: it reads the downloaded
// exports, rebuilds the agent-level report for the target date and writes
// the workbook, CSV mirror and field diagnostics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"agentcli/internal/config"
	"agentcli/internal/infrastructure"
	"agentcli/internal/pipeline"
)

func main() {
	inDir := flag.String("in", "", "input directory with downloaded exports (overrides config)")
	out := flag.String("out", "", "output workbook path (overrides config)")
	date := flag.String("date", "", "target report date YYYY-MM-DD, or 'latest' (overrides config)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *inDir != "" {
		cfg.Paths.InputDir = *inDir
	}
	if *out != "" {
		cfg.Paths.OutputFile = *out
	}
	if *date != "" {
		cfg.Run.TargetDate = *date
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("report run starting",
		slog.String("input_dir", cfg.Paths.InputDir),
		slog.String("target_date", cfg.Run.TargetDate),
		slog.String("output", cfg.Paths.OutputFile))

	result, err := pipeline.New(cfg, logger).Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNoData):
			logger.Error("no usable input data found", slog.String("input_dir", cfg.Paths.InputDir))
		case errors.Is(err, pipeline.ErrNoReportRows):
			logger.Error("reconciliation produced no report rows")
		default:
			logger.Error("report run failed", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}

	logger.Info("report generated",
		slog.String("run_id", result.RunID),
		slog.String("report_date", result.ReportDate),
		slog.Int("rows", len(result.Rows)),
		slog.String("output", result.OutputPath))
	fmt.Printf("报表已生成: %s (%s, %d 行)\n", result.OutputPath, result.ReportDate, len(result.Rows))
}
