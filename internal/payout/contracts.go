package payout

import (
	"context"
	"time"

	"payrecon/internal/ledger"
	"payrecon/internal/recovery"
	"payrecon/kit/broker"
	"payrecon/kit/gateway"
)

// StoreContract define the ledger operations the payout flow needs.
type StoreContract interface {
	GetAccount(ctx context.Context, accountID string) (*ledger.Account, error)
	GetTransaction(ctx context.Context, txID string) (*ledger.Transaction, error)
	GetTransactionByExternalRef(ctx context.Context, externalRef string) (*ledger.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, externalRef string, status ledger.Status) (*ledger.Transaction, error)
	ListPending(ctx context.Context, typ ledger.Type, olderThan time.Time) ([]*ledger.Transaction, error)
	ReservePayout(ctx context.Context, tx *ledger.Transaction) error
	AttachExternalRef(ctx context.Context, txID, externalRef string) (*ledger.Transaction, error)
	ReleasePayout(ctx context.Context, txID string) (*ledger.Transaction, bool, error)
	MarkStuck(ctx context.Context, txID string) (*ledger.Transaction, error)
}

type GatewayContract interface {
	SubmitPayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Payout, error)
}

// PollerContract hands a submitted payout to background status polling.
type PollerContract interface {
	Track(tx *ledger.Transaction) bool
}

type PublisherContract interface {
	Publish(ctx context.Context, evt broker.Event) []error
}

type RecoveryContract interface {
	Escalate(ctx context.Context, c recovery.Case) bool
	Resolve(id string) bool
}

// ServiceContract define payout service responsibility.
type ServiceContract interface {
	SendPayout(ctx context.Context, accountID, recipient string, amount int64) (*Result, error)
	Status(ctx context.Context, accountID, idOrRef string) (*ledger.Transaction, error)
	Recover(ctx context.Context) (*RecoverReport, error)
	RecoverAll(ctx context.Context) (*RecoverReport, error)
	Resolve(ctx context.Context, txID string, status ledger.Status) (*ledger.Transaction, error)
}
