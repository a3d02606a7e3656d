package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type GatewayMock struct {
	mock.Mock
	Gateway
}

func (m *GatewayMock) GetPayoutStatus(ctx context.Context, payoutBatchID string) (PayoutStatus, error) {
	args := m.Called(ctx, payoutBatchID)
	return args.Get(0).(PayoutStatus), args.Error(1)
}

func (m *GatewayMock) SubmitPayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payout), args.Error(1)
}

func TestCircuitBreakerGateway_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	next := new(GatewayMock)
	next.On("GetPayoutStatus", ctx, "PB-1").Return(PayoutStatus(""), ErrUnavailable).Times(2)

	cb := NewCircuitBreakerGateway(next, CircuitBreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := cb.GetPayoutStatus(ctx, "PB-1")
		require.ErrorIs(t, err, ErrUnavailable)
	}
	require.Equal(t, "open", cb.State())

	_, err := cb.GetPayoutStatus(ctx, "PB-1")
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.ErrorIs(t, err, ErrUnavailable)
	next.AssertNumberOfCalls(t, "GetPayoutStatus", 2)
}

func TestCircuitBreakerGateway_RejectionsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	req := PayoutRequest{BatchID: "payout-1", Recipient: "r@example.com", Amount: 100, Currency: "USD"}
	next := new(GatewayMock)
	next.On("SubmitPayout", ctx, req).Return(nil, ErrRejected)

	cb := NewCircuitBreakerGateway(next, CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Hour})
	for i := 0; i < 3; i++ {
		_, err := cb.SubmitPayout(ctx, req)
		require.ErrorIs(t, err, ErrRejected)
	}
	require.Equal(t, "closed", cb.State())
}

func TestCircuitBreakerGateway_HalfOpenRecovers(t *testing.T) {
	ctx := context.Background()
	next := new(GatewayMock)
	next.On("GetPayoutStatus", ctx, "PB-1").Return(PayoutStatus(""), errors.Join(ErrUnavailable, context.DeadlineExceeded)).Once()
	next.On("GetPayoutStatus", ctx, "PB-1").Return(PayoutSuccess, nil).Once()

	cb := NewCircuitBreakerGateway(next, CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond})
	_, err := cb.GetPayoutStatus(ctx, "PB-1")
	require.Error(t, err)
	require.Equal(t, "open", cb.State())

	require.Eventually(t, func() bool {
		status, err := cb.GetPayoutStatus(ctx, "PB-1")
		return err == nil && status == PayoutSuccess
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "closed", cb.State())
}
