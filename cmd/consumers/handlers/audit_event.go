package handlers

import (
	"context"

	"payrecon/internal/events"
	"payrecon/kit/broker"
)

type AuditEvent struct {
	audit AuditorContract
}

func NewAuditEvent(a AuditorContract) *AuditEvent {
	return &AuditEvent{audit: a}
}

func (h *AuditEvent) HandleAny(ctx context.Context, evt broker.Event) error {
	if h.audit == nil {
		return nil
	}

	fields := map[string]any{}
	switch e := evt.(type) {
	case events.DepositInitiated:
		fields["order_id"] = e.OrderID
		fields["account_id"] = e.AccountID
		fields["amount"] = e.Amount
	case events.DepositCompleted:
		fields["transaction_id"] = e.TransactionID
		fields["order_id"] = e.OrderID
		fields["account_id"] = e.AccountID
		fields["amount"] = e.Amount
		fields["already_captured"] = e.AlreadyCaptured
	case events.PayoutReserved:
		fields["transaction_id"] = e.TransactionID
		fields["account_id"] = e.AccountID
		fields["recipient"] = e.Recipient
		fields["amount"] = e.Amount
	case events.PayoutSubmitted:
		fields["transaction_id"] = e.TransactionID
		fields["account_id"] = e.AccountID
		fields["payout_batch_id"] = e.PayoutBatchID
		fields["attempts"] = e.Attempts
	case events.PayoutCompleted:
		fields["transaction_id"] = e.TransactionID
		fields["account_id"] = e.AccountID
		fields["payout_batch_id"] = e.PayoutBatchID
		fields["amount"] = e.Amount
	case events.PayoutFailed:
		fields["transaction_id"] = e.TransactionID
		fields["account_id"] = e.AccountID
		fields["payout_batch_id"] = e.PayoutBatchID
		fields["amount"] = e.Amount
		fields["reason"] = e.Reason
		fields["error_code"] = e.ErrorCode
	case events.PayoutStuck:
		fields["transaction_id"] = e.TransactionID
		fields["account_id"] = e.AccountID
		fields["payout_batch_id"] = e.PayoutBatchID
		fields["reason"] = e.Reason
		fields["attempts"] = e.Attempts
	case events.RecoveryRequested:
		fields["transaction_id"] = e.TransactionID
		fields["account_id"] = e.AccountID
		fields["external_ref"] = e.ExternalRef
		fields["action"] = e.Action
		fields["reason"] = e.Reason
	default:
		return nil
	}

	h.audit.Record(ctx, evt.Name(), fields)
	return nil
}
