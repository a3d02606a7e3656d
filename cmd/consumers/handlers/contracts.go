package handlers

import (
	"context"
	"errors"

	"payrecon/internal/payout"
	"payrecon/kit/broker"
)

var ErrUnexpectedEventType = errors.New("unexpected event type")

// BusContract defines the publish responsibility used by consumers handlers.
type BusContract = broker.Publisher

type AuditorContract interface {
	Record(ctx context.Context, eventName string, fields map[string]any)
}

type NotifierContract interface {
	Notify(ctx context.Context, accountID, transactionID, text string)
}

type MetricsContract interface {
	IncEvent(name string)
}

// RecovererContract runs one reconciliation sweep over pending payouts.
type RecovererContract interface {
	Recover(ctx context.Context) (*payout.RecoverReport, error)
}
