package broker

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
)

type testEvent struct {
	ID string `json:"id"`
}

func (testEvent) Name() string           { return "test.happened" }
func (e testEvent) PartitionKey() string { return e.ID }

func TestBus_Publish(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	var tests = []struct {
		name         string
		handlers     func(calls *[]string) []Handler
		expectedErrs int
		expected     []string
	}{
		{
			name: "all handlers run in order",
			handlers: func(calls *[]string) []Handler {
				return []Handler{
					func(context.Context, Event) error { *calls = append(*calls, "a"); return nil },
					func(context.Context, Event) error { *calls = append(*calls, "b"); return nil },
				}
			},
			expected: []string{"a", "b"},
		},
		{
			name: "error and panic do not stop later handlers",
			handlers: func(calls *[]string) []Handler {
				return []Handler{
					func(context.Context, Event) error { *calls = append(*calls, "a"); return boom },
					func(context.Context, Event) error { panic("bad") },
					func(context.Context, Event) error { *calls = append(*calls, "c"); return nil },
				}
			},
			expectedErrs: 2,
			expected:     []string{"a", "c"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls []string
			bus := New(zap.NewNop())
			for _, h := range tt.handlers(&calls) {
				bus.Subscribe(testEvent{}.Name(), h)
			}
			bus.Subscribe("other.event", func(context.Context, Event) error {
				calls = append(calls, "other")
				return nil
			})

			errs := bus.Publish(ctx, testEvent{ID: "1"})
			require.Len(t, errs, tt.expectedErrs)
			require.Equal(t, tt.expected, calls)
		})
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	var seen []string
	bus := New(nil)
	bus.SubscribeAll(func(_ context.Context, evt Event) error {
		seen = append(seen, evt.Name())
		return nil
	})

	bus.Publish(context.Background(), testEvent{ID: "1"})
	require.Equal(t, []string{"test.happened"}, seen)
}

type redisMock struct {
	mock.Mock
}

func (m *redisMock) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	args := m.Called(ctx, channel, message)
	return redis.NewIntResult(int64(args.Int(0)), args.Error(1))
}

func TestRedisPublisher_Handle(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rdb := new(redisMock)
	rdb.On("Publish", ctx, "events", mock.MatchedBy(func(msg interface{}) bool {
		var env Envelope
		if err := json.Unmarshal(msg.([]byte), &env); err != nil {
			return false
		}
		return env.Event == "test.happened" && env.Key == "42" && string(env.Payload) == `{"id":"42"}` && env.Timestamp.Equal(at)
	})).Return(1, nil).Once()
	rdb.On("Publish", ctx, "events", mock.Anything).Return(0, errors.New("connection refused")).Once()

	pub := NewRedisPublisher(rdb, "events")
	pub.now = func() time.Time { return at }

	require.NoError(t, pub.Handle(ctx, testEvent{ID: "42"}))
	require.ErrorContains(t, pub.Handle(ctx, testEvent{ID: "43"}), "connection refused")
	rdb.AssertExpectations(t)
}
