package ledger

import (
	"context"
	"iter"
	"time"
)

// StoreContract define ledger store responsibility. Every mutation is
// committed before the call returns.
type StoreContract interface {
	OpenAccount(ctx context.Context, accountID string) (*Account, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	Credit(ctx context.Context, accountID string, amount int64) error
	Debit(ctx context.Context, accountID string, amount int64) error

	RecordTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	GetTransactionByExternalRef(ctx context.Context, externalRef string) (*Transaction, error)
	UpdateTransactionStatus(ctx context.Context, externalRef string, status Status) (*Transaction, error)
	ListTransactions(ctx context.Context, accountID string, limit int) iter.Seq2[*Transaction, error]
	ListPending(ctx context.Context, typ Type, olderThan time.Time) ([]*Transaction, error)

	// ReservePayout debits the account and records the pending payout in one
	// unit. On ErrInsufficientFunds nothing is written.
	ReservePayout(ctx context.Context, tx *Transaction) error
	AttachExternalRef(ctx context.Context, txID, externalRef string) (*Transaction, error)
	// ReleasePayout marks a pending payout failed and credits the reserved
	// amount back. released is false when the payout was already failed.
	ReleasePayout(ctx context.Context, txID string) (tx *Transaction, released bool, err error)
	// MarkStuck flags a pending transaction as escalated. The first mark wins
	// and a terminal transaction is returned unchanged.
	MarkStuck(ctx context.Context, txID string) (*Transaction, error)
	// SettleDeposit records a completed deposit and credits the account in one
	// unit. A second settle for the same external ref fails with db.ErrConflict.
	SettleDeposit(ctx context.Context, tx *Transaction) error

	Ping(ctx context.Context) error
	Close() error
}
