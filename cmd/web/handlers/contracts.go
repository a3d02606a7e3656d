package handlers

import (
	"context"
	"iter"

	"payrecon/internal/deposit"
	"payrecon/internal/health"
	"payrecon/internal/ledger"
	"payrecon/internal/payout"
)

type DepositServiceContract interface {
	InitiateDeposit(ctx context.Context, accountID string, amount int64) (*deposit.Initiated, error)
	CompleteDeposit(ctx context.Context, orderID, accountID string) (*deposit.Result, error)
}

type PayoutServiceContract interface {
	SendPayout(ctx context.Context, accountID, recipient string, amount int64) (*payout.Result, error)
	Status(ctx context.Context, accountID, idOrRef string) (*ledger.Transaction, error)
}

type LedgerContract interface {
	GetAccount(ctx context.Context, accountID string) (*ledger.Account, error)
	ListTransactions(ctx context.Context, accountID string, limit int) iter.Seq2[*ledger.Transaction, error]
}

type HealthContract interface {
	Check(ctx context.Context) health.Result
}

type SnapshotContract interface {
	Snapshot() map[string]float64
}
