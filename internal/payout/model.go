package payout

import (
	"time"

	"payrecon/internal/ledger"
)

type Config struct {
	Currency string

	// SubmitRetries bounds resubmissions of one SubmitPayout call on
	// ErrUnavailable. The same idempotency token is sent every time.
	SubmitRetries int
	RetryInitial  time.Duration
	RetryMax      time.Duration

	// Pending payouts without an external ref are resubmitted by Recover
	// once they are ResubmitAfter old, and escalated once they are
	// ResubmitDeadline old.
	ResubmitAfter    time.Duration
	ResubmitDeadline time.Duration
}

func (c Config) withDefaults() Config {
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.SubmitRetries < 0 {
		c.SubmitRetries = 0
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 200 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2 * time.Second
	}
	if c.ResubmitAfter <= 0 {
		c.ResubmitAfter = time.Minute
	}
	if c.ResubmitDeadline <= 0 {
		c.ResubmitDeadline = 24 * time.Hour
	}
	return c
}

// Result of SendPayout. Transaction is pending on success; Submitted is false
// when the gateway could not be reached and the payout awaits resubmission.
type Result struct {
	Transaction *ledger.Transaction
	Balance     int64
	Submitted   bool
}

type RecoverReport struct {
	Tracked     int `json:"tracked"`
	Resubmitted int `json:"resubmitted"`
	Compensated int `json:"compensated"`
	Escalated   int `json:"escalated"`
	Waiting     int `json:"waiting"`
	Skipped     int `json:"skipped"`
}

func description(recipient string) string {
	return "Payment sent to " + recipient
}
