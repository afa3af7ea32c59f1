package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcclellann/tuitionLedger/pkg/app"
	"github.com/mcclellann/tuitionLedger/pkg/config"
	"github.com/mcclellann/tuitionLedger/pkg/worker"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run the overdue sweep once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	a, err := app.Open(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	scheduler, err := worker.NewScheduler(cfg.SweepRRule, a.Ledger, logger.Named("worker"))
	if err != nil {
		logger.Fatal("invalid sweep schedule", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting down worker")
		cancel()
	}()

	// catch up on anything missed while the worker was down
	if err := scheduler.RunOnce(ctx); err != nil && *once {
		os.Exit(1)
	}
	if *once {
		return
	}

	logger.Info("worker started", zap.String("rrule", cfg.SweepRRule))
	if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", zap.Error(err))
	}
}
