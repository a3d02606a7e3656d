package handlers

import (
	"context"
	"iter"

	"github.com/stretchr/testify/mock"

	"payrecon/internal/deposit"
	"payrecon/internal/health"
	"payrecon/internal/ledger"
	"payrecon/internal/payout"
)

type DepositServiceMock struct {
	mock.Mock
	DepositServiceContract
}

func (m *DepositServiceMock) InitiateDeposit(ctx context.Context, accountID string, amount int64) (*deposit.Initiated, error) {
	args := m.Called(ctx, accountID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deposit.Initiated), args.Error(1)
}

func (m *DepositServiceMock) CompleteDeposit(ctx context.Context, orderID, accountID string) (*deposit.Result, error) {
	args := m.Called(ctx, orderID, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deposit.Result), args.Error(1)
}

type PayoutServiceMock struct {
	mock.Mock
	PayoutServiceContract
}

func (m *PayoutServiceMock) SendPayout(ctx context.Context, accountID, recipient string, amount int64) (*payout.Result, error) {
	args := m.Called(ctx, accountID, recipient, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.Result), args.Error(1)
}

func (m *PayoutServiceMock) Status(ctx context.Context, accountID, idOrRef string) (*ledger.Transaction, error) {
	args := m.Called(ctx, accountID, idOrRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

type LedgerMock struct {
	mock.Mock
	LedgerContract
}

func (m *LedgerMock) GetAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Account), args.Error(1)
}

// ListTransactions yields the mocked slice, then the mocked error if any.
func (m *LedgerMock) ListTransactions(ctx context.Context, accountID string, limit int) iter.Seq2[*ledger.Transaction, error] {
	args := m.Called(ctx, accountID, limit)
	txs, _ := args.Get(0).([]*ledger.Transaction)
	err := args.Error(1)
	return func(yield func(*ledger.Transaction, error) bool) {
		for _, tx := range txs {
			if !yield(tx, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

type HealthMock struct {
	mock.Mock
}

func (m *HealthMock) Check(ctx context.Context) health.Result {
	return m.Called(ctx).Get(0).(health.Result)
}

type SnapshotMock struct {
	mock.Mock
}

func (m *SnapshotMock) Snapshot() map[string]float64 {
	return m.Called().Get(0).(map[string]float64)
}
