package ledger

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	TypeDeposit Type = "deposit"
	TypePayout  Type = "payout"
)

func (t Type) Valid() bool {
	return t == TypeDeposit || t == TypePayout
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Account balances are integer minor units (cents).
type Account struct {
	ID        string    `json:"id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction amounts are signed: credits positive, debits negative.
type Transaction struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Type           Type      `json:"type"`
	Amount         int64     `json:"amount"`
	Counterparty   string    `json:"counterparty,omitempty"`
	Description    string    `json:"description"`
	Status         Status    `json:"status"`
	ExternalRef    string    `json:"external_ref,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	// StuckAt is set once a pending payout has been handed to an operator.
	// Periodic sweeps leave such payouts alone.
	StuckAt *time.Time `json:"stuck_at,omitempty"`
}

func (t *Transaction) clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (t *Transaction) Stuck() bool {
	return t.StuckAt != nil
}

// Magnitude returns the absolute amount moved by the transaction.
func (t *Transaction) Magnitude() int64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a lexicographically time-ordered transaction id.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// PayoutToken derives the gateway idempotency token for a payout transaction.
// The same transaction always yields the same token.
func PayoutToken(txID string) string {
	return "payout-" + txID
}

// now is truncated to microseconds, the coarsest precision of any backend.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
