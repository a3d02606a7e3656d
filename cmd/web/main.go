package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	consumerhandlers "payrecon/cmd/consumers/handlers"
	"payrecon/cmd/web/handlers"
	"payrecon/cmd/web/middleware"
	"payrecon/cmd/web/router"
	"payrecon/cmd/web/validator"
	"payrecon/internal/app"
	"payrecon/internal/config"
	"payrecon/kit/observability"
)

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
	logger = logger.With(zap.String("process", "web"))

	if cfg.Auth.JWTSecret == "" {
		logger.Error("auth.jwt_secret is required")
		return
	}

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
	})

	// payouts left pending by a previous run resume polling, stuck ones included
	if report, err := a.Payout.RecoverAll(ctx); err != nil {
		logger.Error("startup recovery error", zap.Error(err))
	} else {
		logger.Info("startup recovery done", zap.Int("tracked", report.Tracked), zap.Int("resubmitted", report.Resubmitted), zap.Int("escalated", report.Escalated))
	}

	jsonV := validator.NewJSON()
	auth := middleware.NewAuth(middleware.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience), a.Store, logger)
	handler := router.New(router.Handlers{
		Deposit: handlers.NewDeposit(jsonV, a.Deposit, logger),
		Payout:  handlers.NewPayout(jsonV, a.Payout, logger),
		Account: handlers.NewAccount(a.Store, logger),
		Health:  handlers.NewHealth(a.Health),
		Metrics: handlers.NewMetrics(a.Stats, a.Metrics.Registry),
	}, auth, cfg.Server.CORSOrigins, logger)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web server started", zap.String("addr", srv.Addr), zap.String("database", cfg.Database.Driver), zap.String("gateway", cfg.Gateway.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("web server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("web server shutdown error", zap.Error(err))
	}
	logger.Info("web server stopped")
}
