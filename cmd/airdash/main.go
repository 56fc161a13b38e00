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

	"github.com/luki/airdash/internal/app"
	"github.com/luki/airdash/internal/config"
	"github.com/luki/airdash/internal/logging"
)

var version = "dev"
var appName = "airdash"

func main() {
	headless := flag.Bool("headless", false, "run without the terminal dashboard")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// the dashboard owns the terminal, so logs go to a file while it runs
	logOut, color := os.Stdout, true
	if !*headless {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut, color = f, false
	}

	logger := logging.New(cfg, version, appName, logOut, color)
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger, app.Options{Headless: *headless}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		fmt.Fprintf(os.Stderr, "airdash: %v\n", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}
