package payout

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"payrecon/internal/ledger"
	"payrecon/kit/gateway"
)

type StoreMock struct {
	mock.Mock
	StoreContract
}

func (m *StoreMock) GetAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Account), args.Error(1)
}

func (m *StoreMock) GetTransaction(ctx context.Context, txID string) (*ledger.Transaction, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *StoreMock) GetTransactionByExternalRef(ctx context.Context, externalRef string) (*ledger.Transaction, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *StoreMock) ListPending(ctx context.Context, typ ledger.Type, olderThan time.Time) ([]*ledger.Transaction, error) {
	args := m.Called(ctx, typ, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Transaction), args.Error(1)
}

func (m *StoreMock) ReservePayout(ctx context.Context, tx *ledger.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *StoreMock) AttachExternalRef(ctx context.Context, txID, externalRef string) (*ledger.Transaction, error) {
	args := m.Called(ctx, txID, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *StoreMock) ReleasePayout(ctx context.Context, txID string) (*ledger.Transaction, bool, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*ledger.Transaction), args.Bool(1), args.Error(2)
}

func (m *StoreMock) MarkStuck(ctx context.Context, txID string) (*ledger.Transaction, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

type GatewayMock struct {
	mock.Mock
	GatewayContract
}

func (m *GatewayMock) SubmitPayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Payout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Payout), args.Error(1)
}

type PollerMock struct {
	mock.Mock
	PollerContract
}

func (m *PollerMock) Track(tx *ledger.Transaction) bool {
	args := m.Called(tx)
	return args.Bool(0)
}
