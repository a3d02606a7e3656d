package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"payrecon/internal/events"
	"payrecon/kit/broker"
	"payrecon/kit/observability"
)

// RecoveryEvent logs escalations for the operator. Nothing here triggers a
// sweep: a stuck payout is polled again only after a restart or through
// ledgerctl reconcile.
type RecoveryEvent struct {
	logger *zap.Logger
}

func NewRecoveryEvent(logger *zap.Logger) *RecoveryEvent {
	return &RecoveryEvent{
		logger: observability.Component(logger, "handler", "recovery_event"),
	}
}

func (h *RecoveryEvent) HandleRecoveryRequested(_ context.Context, evt broker.Event) error {
	e, ok := evt.(events.RecoveryRequested)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEventType, evt)
	}
	h.logger.Warn("waiting for operator",
		zap.String("method", "HandleRecoveryRequested"),
		zap.String("transaction_id", e.TransactionID),
		zap.String("account_id", e.AccountID),
		zap.String("external_ref", e.ExternalRef),
		zap.String("action", e.Action),
		zap.String("reason", e.Reason),
	)
	return nil
}
