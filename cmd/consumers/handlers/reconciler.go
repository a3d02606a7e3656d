package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"payrecon/kit/observability"
)

// Reconciler runs the pending-payout sweep on a fixed interval, starting
// immediately.
type Reconciler struct {
	logger    *zap.Logger
	recoverer RecovererContract
	interval  time.Duration
	onSweep   func()
}

func NewReconciler(logger *zap.Logger, recoverer RecovererContract, interval time.Duration, onSweep func()) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		logger:    observability.Component(logger, "handler", "reconciler"),
		recoverer: recoverer,
		interval:  interval,
		onSweep:   onSweep,
	}
}

// Run sweeps until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		r.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	report, err := r.recoverer.Recover(ctx)
	if err != nil {
		r.logger.Error("sweep error", zap.String("method", "Run"), zap.Error(err))
	} else {
		r.logger.Debug("sweep done", zap.String("method", "Run"), zap.Any("report", report))
	}
	if r.onSweep != nil {
		r.onSweep()
	}
}
