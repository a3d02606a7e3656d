package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"payrecon/internal/audit"
	"payrecon/internal/config"
	"payrecon/internal/deposit"
	"payrecon/internal/health"
	"payrecon/internal/ledger"
	"payrecon/internal/metrics"
	"payrecon/internal/notification"
	"payrecon/internal/payout"
	"payrecon/internal/poller"
	"payrecon/internal/recovery"
	"payrecon/kit/broker"
	"payrecon/kit/gateway"
	"payrecon/kit/observability"
)

// App holds every component a binary needs, wired from one Config.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Store    ledger.StoreContract
	Gateway  gateway.Gateway
	Breaker  *gateway.CircuitBreakerGateway
	Bus      *broker.Bus
	Redis    *redis.Client
	Recovery *recovery.Service
	Poller   *poller.Poller
	Pollers  *poller.Manager

	Deposit *deposit.Service
	Payout  *payout.Service

	Audit        *audit.Service
	Notification *notification.Service
	Stats        *metrics.Service
	Health       *health.Service
}

// New builds the ledger store, gateway, bus and flows. cleanup stops the
// pollers and closes what New opened, in reverse order.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize ledger: %w", err))
	}
	a.Store = store
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			logger.Error("ledger close error", zap.Error(err))
		}
	})

	a.Bus = broker.New(logger)

	var locker poller.Locker
	recoveryOpts := []recovery.Option{recovery.WithPublisher(a.Bus)}
	var notifyOpts []notification.Option
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		a.Redis = rdb
		closers = append(closers, func() { _ = rdb.Close() })

		a.Bus.SubscribeAll(broker.NewRedisPublisher(rdb, cfg.Redis.Channel).Handle)
		locker = poller.NewRedisLocker(rdb, "")
		recoveryOpts = append(recoveryOpts, recovery.WithRedisList(rdb, ""))
		notifyOpts = append(notifyOpts, notification.WithRedis(rdb, ""))
	}

	a.Gateway, a.Breaker = newGateway(cfg.Gateway)
	a.Recovery = recovery.NewService(logger, recoveryOpts...)

	a.Poller = poller.New(a.Store, a.Gateway, a.Bus, a.Recovery, a.Metrics, logger, poller.Config{
		InitialInterval:     cfg.Poller.InitialInterval,
		MaxInterval:         cfg.Poller.MaxInterval,
		Multiplier:          cfg.Poller.Multiplier,
		RandomizationFactor: cfg.Poller.RandomizationFactor,
		MaxElapsed:          cfg.Poller.MaxElapsed,
		MaxAttempts:         cfg.Poller.MaxAttempts,
	})
	a.Pollers = poller.NewManager(a.Poller, locker, cfg.Poller.LockTTL, a.Metrics, logger)
	// runs before the store and redis are closed
	closers = append(closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Pollers.Shutdown(sctx); err != nil {
			logger.Warn("pollers still running at shutdown", zap.Error(err))
		}
	})

	a.Deposit = deposit.NewService(a.Store, a.Gateway, a.Bus, a.Recovery, a.Metrics, logger, cfg.Gateway.Currency)
	a.Payout = payout.NewService(a.Store, a.Gateway, a.Pollers, a.Bus, a.Recovery, a.Metrics, logger, payout.Config{
		Currency:         cfg.Gateway.Currency,
		SubmitRetries:    cfg.Gateway.SubmitRetries,
		RetryInitial:     cfg.Gateway.RetryInitial,
		RetryMax:         cfg.Gateway.RetryMax,
		ResubmitAfter:    cfg.Poller.ResubmitAfter,
		ResubmitDeadline: cfg.Poller.ResubmitDeadline,
	})

	if cfg.Audit.Path != "" {
		a.Audit, err = audit.NewServiceWithFile(logger, cfg.Audit.Path)
		if err != nil {
			return fail(fmt.Errorf("failed to open audit trail: %w", err))
		}
		closers = append(closers, func() { _ = a.Audit.Close() })
	} else {
		a.Audit = audit.NewService(logger)
	}
	a.Notification = notification.NewService(logger, notifyOpts...)
	a.Stats = metrics.NewService(a.Metrics, logger)
	a.Health = health.NewService(cfg.Server.HealthTTL, 0, a.healthChecks(), logger)

	return a, cleanup, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (ledger.StoreContract, error) {
	switch cfg.Driver {
	case "memory":
		return ledger.NewMemoryStore(), nil
	case "file":
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		return ledger.NewFileStore(cfg.Path, logger)
	case "sqlite":
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		return ledger.NewSQLiteStore(ctx, cfg.Path, logger)
	case "postgres":
		return ledger.NewPostgresStore(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newGateway(cfg config.GatewayConfig) (gateway.Gateway, *gateway.CircuitBreakerGateway) {
	var next gateway.Gateway
	switch cfg.Provider {
	case "paypal":
		next = gateway.NewPayPalGateway(gateway.PayPalConfig{
			BaseURL:      cfg.BaseURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			ReturnURL:    cfg.ReturnURL,
			CancelURL:    cfg.CancelURL,
			BrandName:    cfg.BrandName,
			Timeout:      cfg.Timeout,
		}, &http.Client{Timeout: cfg.Timeout})
	default:
		next = gateway.NewFakeGateway(gateway.WithAutoApprove(true), gateway.WithPayoutScript(gateway.SucceedAfter(2)))
	}
	breaker := gateway.NewCircuitBreakerGateway(next, gateway.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	})
	return breaker, breaker
}

var errCircuitOpen = errors.New("gateway circuit open")

func (a *App) healthChecks() map[string]health.CheckFunc {
	checks := map[string]health.CheckFunc{
		"db": a.Store.Ping,
		"gateway": func(context.Context) error {
			if a.Breaker != nil && a.Breaker.State() == "open" {
				return errCircuitOpen
			}
			return nil
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}
