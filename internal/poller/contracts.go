package poller

import (
	"context"
	"time"

	"payrecon/internal/ledger"
	"payrecon/internal/recovery"
	"payrecon/kit/broker"
	"payrecon/kit/gateway"
)

// StoreContract define the ledger transitions a poll can end in.
type StoreContract interface {
	UpdateTransactionStatus(ctx context.Context, externalRef string, status ledger.Status) (*ledger.Transaction, error)
	ReleasePayout(ctx context.Context, txID string) (*ledger.Transaction, bool, error)
	MarkStuck(ctx context.Context, txID string) (*ledger.Transaction, error)
}

type GatewayContract interface {
	GetPayoutStatus(ctx context.Context, payoutBatchID string) (gateway.PayoutStatus, error)
}

type PublisherContract interface {
	Publish(ctx context.Context, evt broker.Event) []error
}

type RecoveryContract interface {
	Escalate(ctx context.Context, c recovery.Case) bool
}

// Runner polls one payout to an outcome.
type Runner interface {
	Run(ctx context.Context, tx *ledger.Transaction) (Outcome, error)
}

// Locker guards a payout against being polled by two processes at once.
// ok is false when another holder has it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
