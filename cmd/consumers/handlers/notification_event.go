package handlers

import (
	"context"
	"fmt"

	"payrecon/internal/events"
	"payrecon/internal/money"
	"payrecon/kit/broker"
)

type NotificationEvent struct {
	n NotifierContract
}

func NewNotificationEvent(n NotifierContract) *NotificationEvent {
	return &NotificationEvent{n: n}
}

func (h *NotificationEvent) HandleDepositCompleted(ctx context.Context, evt broker.Event) error {
	if h.n == nil {
		return nil
	}
	e, ok := evt.(events.DepositCompleted)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEventType, evt)
	}
	h.n.Notify(ctx, e.AccountID, e.TransactionID, fmt.Sprintf("deposit of %s completed", money.Format(e.Amount)))
	return nil
}

func (h *NotificationEvent) HandlePayoutCompleted(ctx context.Context, evt broker.Event) error {
	if h.n == nil {
		return nil
	}
	e, ok := evt.(events.PayoutCompleted)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEventType, evt)
	}
	h.n.Notify(ctx, e.AccountID, e.TransactionID, fmt.Sprintf("payout of %s completed", money.Format(e.Amount)))
	return nil
}

func (h *NotificationEvent) HandlePayoutFailed(ctx context.Context, evt broker.Event) error {
	if h.n == nil {
		return nil
	}
	e, ok := evt.(events.PayoutFailed)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEventType, evt)
	}
	h.n.Notify(ctx, e.AccountID, e.TransactionID, fmt.Sprintf("payout of %s failed, funds returned", money.Format(e.Amount)))
	return nil
}

func (h *NotificationEvent) HandlePayoutStuck(ctx context.Context, evt broker.Event) error {
	if h.n == nil {
		return nil
	}
	e, ok := evt.(events.PayoutStuck)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEventType, evt)
	}
	h.n.Notify(ctx, e.AccountID, e.TransactionID, "payout is delayed and under review")
	return nil
}
