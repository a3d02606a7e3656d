package events

import "time"

type DepositInitiated struct {
	OrderID   string    `json:"order_id"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	At        time.Time `json:"at"`
}

func (DepositInitiated) Name() string { return "deposit.initiated" }

func (e DepositInitiated) PartitionKey() string { return e.OrderID }

type DepositCompleted struct {
	TransactionID   string    `json:"transaction_id"`
	OrderID         string    `json:"order_id"`
	AccountID       string    `json:"account_id"`
	Amount          int64     `json:"amount"`
	AlreadyCaptured bool      `json:"already_captured"`
	At              time.Time `json:"at"`
}

func (DepositCompleted) Name() string { return "deposit.completed" }

func (e DepositCompleted) PartitionKey() string { return e.OrderID }

type PayoutReserved struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Recipient     string    `json:"recipient"`
	Amount        int64     `json:"amount"`
	At            time.Time `json:"at"`
}

func (PayoutReserved) Name() string { return "payout.reserved" }

func (e PayoutReserved) PartitionKey() string { return e.TransactionID }

type PayoutSubmitted struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	PayoutBatchID string    `json:"payout_batch_id"`
	Attempts      int       `json:"attempts"`
	At            time.Time `json:"at"`
}

func (PayoutSubmitted) Name() string { return "payout.submitted" }

func (e PayoutSubmitted) PartitionKey() string { return e.TransactionID }

type PayoutCompleted struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	PayoutBatchID string    `json:"payout_batch_id"`
	Amount        int64     `json:"amount"`
	At            time.Time `json:"at"`
}

func (PayoutCompleted) Name() string { return "payout.completed" }

func (e PayoutCompleted) PartitionKey() string { return e.TransactionID }

// PayoutFailed is published once the reserved funds were credited back.
type PayoutFailed struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	PayoutBatchID string    `json:"payout_batch_id,omitempty"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	ErrorCode     string    `json:"error_code,omitempty"`
	At            time.Time `json:"at"`
}

func (PayoutFailed) Name() string { return "payout.failed" }

func (e PayoutFailed) PartitionKey() string { return e.TransactionID }

type PayoutStuck struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	PayoutBatchID string    `json:"payout_batch_id,omitempty"`
	Reason        string    `json:"reason"`
	Attempts      int       `json:"attempts"`
	At            time.Time `json:"at"`
}

func (PayoutStuck) Name() string { return "payout.stuck" }

func (e PayoutStuck) PartitionKey() string { return e.TransactionID }

type RecoveryRequested struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	ExternalRef   string    `json:"external_ref,omitempty"`
	Action        string    `json:"action"`
	Reason        string    `json:"reason"`
	At            time.Time `json:"at"`
}

func (RecoveryRequested) Name() string { return "recovery.requested" }

func (e RecoveryRequested) PartitionKey() string { return e.TransactionID }

// All lists one zero value of every event, for subscribers that fan in.
func All() []interface{ Name() string } {
	return []interface{ Name() string }{
		DepositInitiated{},
		DepositCompleted{},
		PayoutReserved{},
		PayoutSubmitted{},
		PayoutCompleted{},
		PayoutFailed{},
		PayoutStuck{},
		RecoveryRequested{},
	}
}
