package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnavailable     = errors.New("gateway unavailable")
	ErrRejected        = errors.New("gateway rejected")
	ErrAlreadyCaptured = errors.New("order already captured")
	ErrNotFound        = errors.New("gateway resource not found")
	ErrCircuitOpen     = errors.New("circuit open")
)

func IsUnavailable(err error) bool     { return errors.Is(err, ErrUnavailable) }
func IsRejected(err error) bool        { return errors.Is(err, ErrRejected) }
func IsAlreadyCaptured(err error) bool { return errors.Is(err, ErrAlreadyCaptured) }
func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "PENDING"
	PayoutSuccess PayoutStatus = "SUCCESS"
	PayoutFailed  PayoutStatus = "FAILED"
)

func (s PayoutStatus) Terminal() bool {
	return s == PayoutSuccess || s == PayoutFailed
}

type Order struct {
	ID          string
	ApprovalURL string
	Status      string
}

type Capture struct {
	OrderID   string
	CaptureID string
	Amount    int64
	Currency  string
}

// PayoutRequest amounts are minor units. BatchID is the caller's idempotency
// token: submitting the same BatchID twice yields the same payout.
type PayoutRequest struct {
	BatchID   string
	Recipient string
	Amount    int64
	Currency  string
}

type Payout struct {
	PayoutBatchID string
	BatchID       string
	Status        PayoutStatus
}

// Gateway is the external payment capability. Implementations never retry;
// retry policy belongs to the caller.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency string) (*Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*Capture, error)
	SubmitPayout(ctx context.Context, req PayoutRequest) (*Payout, error)
	GetPayoutStatus(ctx context.Context, payoutBatchID string) (PayoutStatus, error)
}

// APIError carries the provider's error details while unwrapping to one of
// the package sentinels.
type APIError struct {
	Kind       error
	StatusCode int
	Name       string
	Issue      string
	Message    string
	DebugID    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%v: status=%d name=%s", e.Kind, e.StatusCode, e.Name)
	if e.Issue != "" {
		msg += " issue=" + e.Issue
	}
	if e.DebugID != "" {
		msg += " debug_id=" + e.DebugID
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Kind }

// Code returns a short machine-readable code for logs and events.
func Code(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr) && apiErr.Issue != "":
		return apiErr.Issue
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrAlreadyCaptured):
		return "already_captured"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "unknown"
	}
}
