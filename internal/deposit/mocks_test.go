package deposit

import (
	"context"

	"github.com/stretchr/testify/mock"

	"payrecon/internal/ledger"
	"payrecon/internal/recovery"
	"payrecon/kit/broker"
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

func (m *StoreMock) GetTransactionByExternalRef(ctx context.Context, externalRef string) (*ledger.Transaction, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *StoreMock) SettleDeposit(ctx context.Context, tx *ledger.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

type GatewayMock struct {
	mock.Mock
	GatewayContract
}

func (m *GatewayMock) CreateOrder(ctx context.Context, amount int64, currency string) (*gateway.Order, error) {
	args := m.Called(ctx, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Order), args.Error(1)
}

func (m *GatewayMock) CaptureOrder(ctx context.Context, orderID string) (*gateway.Capture, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Capture), args.Error(1)
}

type PublisherMock struct {
	mock.Mock
	PublisherContract
}

func (m *PublisherMock) Publish(ctx context.Context, evt broker.Event) []error {
	args := m.Called(ctx, evt)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]error)
}

type RecoveryMock struct {
	mock.Mock
	RecoveryContract
}

func (m *RecoveryMock) Escalate(ctx context.Context, c recovery.Case) bool {
	args := m.Called(ctx, c)
	return args.Bool(0)
}
