package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payrecon/internal/events"
	"payrecon/kit/broker"
)

type listPusherMock struct {
	mock.Mock
}

func (m *listPusherMock) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	return redis.NewIntResult(int64(args.Int(0)), args.Error(1))
}

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, evt broker.Event) []error {
	m.Called(ctx, evt)
	return nil
}

func TestService_Escalate(t *testing.T) {
	ctx := context.Background()

	var tests = []struct {
		name     string
		svc      func(t *testing.T) *Service
		cases    []Case
		expected int
	}{
		{
			name: "nil logger does not panic",
			svc: func(t *testing.T) *Service {
				return NewService(nil)
			},
			cases:    []Case{{TransactionID: "tx1", Action: ActionPollExhausted}},
			expected: 1,
		},
		{
			name: "same transaction escalated once",
			svc: func(t *testing.T) *Service {
				return NewService(zap.NewNop())
			},
			cases: []Case{
				{TransactionID: "tx1", Action: ActionPollExhausted},
				{TransactionID: "tx1", Action: ActionResubmitExpired},
				{ExternalRef: "ORDER-1", Action: ActionOrphanCapture},
			},
			expected: 2,
		},
		{
			name: "redis failure is logged only",
			svc: func(t *testing.T) *Service {
				rdb := new(listPusherMock)
				rdb.On("RPush", ctx, "k", mock.Anything).Return(0, errors.New("down"))
				return NewService(zap.NewNop(), WithRedisList(rdb, "k"))
			},
			cases:    []Case{{TransactionID: "tx1"}},
			expected: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := tt.svc(t)
			require.NotPanics(t, func() {
				for _, c := range tt.cases {
					svc.Escalate(ctx, c)
				}
			})
			require.Len(t, svc.Cases(), tt.expected)
		})
	}
}

func TestService_EscalateMirrorsAndPublishes(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rdb := new(listPusherMock)
	rdb.On("RPush", ctx, DefaultListKey, mock.MatchedBy(func(values []interface{}) bool {
		var c Case
		return len(values) == 1 && json.Unmarshal(values[0].([]byte), &c) == nil && c.TransactionID == "tx9"
	})).Return(1, nil).Once()

	bus := new(publisherMock)
	bus.On("Publish", ctx, events.RecoveryRequested{TransactionID: "tx9", AccountID: "acct", ExternalRef: "PB-1", Action: ActionPollExhausted, Reason: "gave up", At: at}).Once()

	svc := NewService(zap.NewNop(), WithRedisList(rdb, ""), WithPublisher(bus))
	require.True(t, svc.Escalate(ctx, Case{TransactionID: "tx9", AccountID: "acct", ExternalRef: "PB-1", Action: ActionPollExhausted, Reason: "gave up", At: at}))
	require.False(t, svc.Escalate(ctx, Case{TransactionID: "tx9", Action: ActionPollExhausted}))

	rdb.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()
	svc := NewService(zap.NewNop())
	svc.Escalate(ctx, Case{TransactionID: "old", At: time.Unix(10, 0)})
	svc.Escalate(ctx, Case{TransactionID: "new", At: time.Unix(20, 0)})

	cases := svc.Cases()
	require.Equal(t, "old", cases[0].TransactionID)
	require.Equal(t, "new", cases[1].TransactionID)

	require.True(t, svc.Resolve("old"))
	require.False(t, svc.Resolve("old"))
	require.Len(t, svc.Cases(), 1)

	require.True(t, svc.Escalate(ctx, Case{TransactionID: "old"}))
}
