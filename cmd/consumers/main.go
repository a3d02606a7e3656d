package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	consumerhandlers "payrecon/cmd/consumers/handlers"
	"payrecon/internal/app"
	"payrecon/internal/config"
	"payrecon/kit/observability"
)

const snapshotEvery = 10

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("process", "consumers"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("app init error", zap.Error(err))
		return
	}
	defer cleanup()

	consumerhandlers.Register(a.Bus, consumerhandlers.Set{
		Audit:        consumerhandlers.NewAuditEvent(a.Audit),
		Metrics:      consumerhandlers.NewMetricsEvent(a.Stats),
		Notification: consumerhandlers.NewNotificationEvent(a.Notification),
		Recovery:     consumerhandlers.NewRecoveryEvent(logger),
	})

	sweeps := 0
	reconciler := consumerhandlers.NewReconciler(logger, a.Payout, cfg.Poller.SweepInterval, func() {
		sweeps++
		if sweeps%snapshotEvery == 1 {
			a.Stats.Log()
		}
	})

	logger.Info("consumers started", zap.Duration("sweep_interval", cfg.Poller.SweepInterval), zap.String("database", cfg.Database.Driver))
	reconciler.Run(ctx)
	a.Stats.Log()
	logger.Info("consumers stopped")
}
