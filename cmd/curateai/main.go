package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"CurateAI/internal/app"
	"CurateAI/internal/config"
	"CurateAI/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "execute a single run and exit instead of scheduling")
	dryRun := flag.Bool("dry-run", false, "run against in-memory storage without delivering the brief")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cfg, logger, *dryRun)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once || *dryRun {
		err = application.Run(ctx)
	} else {
		err = application.RunScheduled(ctx)
	}
	if err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
