package deposit

import (
	"context"

	"payrecon/internal/ledger"
	"payrecon/internal/recovery"
	"payrecon/kit/broker"
	"payrecon/kit/gateway"
)

// StoreContract define the ledger operations the deposit flow needs.
type StoreContract interface {
	GetAccount(ctx context.Context, accountID string) (*ledger.Account, error)
	GetTransactionByExternalRef(ctx context.Context, externalRef string) (*ledger.Transaction, error)
	SettleDeposit(ctx context.Context, tx *ledger.Transaction) error
}

// GatewayContract define the order half of the gateway.
type GatewayContract interface {
	CreateOrder(ctx context.Context, amount int64, currency string) (*gateway.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*gateway.Capture, error)
}

// PublisherContract define publish responsibility (broker).
type PublisherContract interface {
	Publish(ctx context.Context, evt broker.Event) []error
}

// RecoveryContract define operator escalation responsibility.
type RecoveryContract interface {
	Escalate(ctx context.Context, c recovery.Case) bool
}

// ServiceContract define deposit service responsibility.
type ServiceContract interface {
	InitiateDeposit(ctx context.Context, accountID string, amount int64) (*Initiated, error)
	CompleteDeposit(ctx context.Context, orderID, accountID string) (*Result, error)
}
