package broker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Event interface {
	Name() string
}

// Keyed events expose the aggregate they belong to.
type Keyed interface {
	PartitionKey() string
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) []error
}

type Handler func(ctx context.Context, evt Event) error

// Bus is a synchronous in-process fan-out. Handlers run in subscription order
// on the publisher's goroutine; a failing or panicking handler does not stop
// the others.
type Bus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	any      []Handler
}

func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:   logger.With(zap.String("layer", "kit"), zap.String("component", "broker")),
		handlers: make(map[string][]Handler),
	}
}

func (b *Bus) Subscribe(eventName string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], h)
}

// SubscribeAll registers h for every event name.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.any = append(b.any, h)
}

func (b *Bus) Publish(ctx context.Context, evt Event) []error {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[evt.Name()])+len(b.any))
	hs = append(hs, b.handlers[evt.Name()]...)
	hs = append(hs, b.any...)
	b.mu.RUnlock()

	var errs []error
	for i, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("handler panic", zap.String("event", evt.Name()), zap.Int("handler_index", i), zap.Any("panic", r))
					errs = append(errs, fmt.Errorf("handler %d panicked: %v", i, r))
				}
			}()
			if err := h(ctx, evt); err != nil {
				b.logger.Error("handler error", zap.String("event", evt.Name()), zap.Int("handler_index", i), zap.Error(err))
				errs = append(errs, err)
			}
		}()
	}
	return errs
}
