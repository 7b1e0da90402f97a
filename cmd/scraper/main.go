// Command scraper logs into the operator statistics backend and exports the
// daily channel statistics table to a CSV in the downloads directory, where
// the reporter picks it up. Credentials and selector overrides come from
// NEWPLATFORM_* environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"agentcli/internal/config"
	"agentcli/internal/infrastructure"
	"agentcli/internal/scraper"
)

func main() {
	saveDir := flag.String("out", "", "directory to save the exported CSV (overrides NEWPLATFORM_SAVE_DIR)")
	headless := flag.Bool("headless", true, "run the browser headless")
	flag.Parse()

	appCfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load configuration, using defaults", "error", err)
		appCfg = config.Default()
	}
	logger, err := infrastructure.InitializeLogger(appCfg.Logging)
	if err != nil {
		slog.Warn("failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	cfg, err := scraper.LoadConfig()
	if err != nil {
		logger.Error("scraper configuration invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *saveDir != "" {
		cfg.SaveDir = *saveDir
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			cfg.Headless = *headless
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("statistics collection starting",
		slog.String("login_url", cfg.LoginURL),
		slog.String("save_dir", cfg.SaveDir),
		slog.Bool("headless", cfg.Headless))

	path, err := scraper.New(cfg, logger).Run(ctx)
	if err != nil {
		logger.Error("collection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("collection complete", slog.String("path", path))
	fmt.Printf("数据已保存到: %s\n", path)
}
