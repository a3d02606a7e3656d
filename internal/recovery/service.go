package recovery

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"payrecon/internal/events"
	"payrecon/kit/broker"
)

const (
	ActionPollExhausted   = "poll_exhausted"
	ActionResubmitExpired = "resubmit_expired"
	ActionOrphanCapture   = "orphan_capture"
	ActionCompensation    = "compensation_failed"

	DefaultListKey = "payrecon:recovery"
)

// Case is one item waiting for an operator.
type Case struct {
	TransactionID string    `json:"transaction_id,omitempty"`
	AccountID     string    `json:"account_id"`
	ExternalRef   string    `json:"external_ref,omitempty"`
	Action        string    `json:"action"`
	Reason        string    `json:"reason"`
	At            time.Time `json:"at"`
}

func (c Case) key() string {
	if c.TransactionID != "" {
		return c.TransactionID
	}
	return c.ExternalRef
}

type PublisherContract interface {
	Publish(ctx context.Context, evt broker.Event) []error
}

type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

type Option func(*Service)

// WithRedisList mirrors every new case onto a Redis list.
func WithRedisList(rdb listPusher, key string) Option {
	return func(s *Service) {
		if key == "" {
			key = DefaultListKey
		}
		s.rdb = rdb
		s.listKey = key
	}
}

func WithPublisher(bus PublisherContract) Option {
	return func(s *Service) { s.bus = bus }
}

// Service keeps the operator escalation list. A case is recorded once per
// transaction (or external ref when no transaction exists) until resolved.
type Service struct {
	logger  *zap.Logger
	bus     PublisherContract
	rdb     listPusher
	listKey string

	mu    sync.Mutex
	cases map[string]Case
}

func NewService(logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		logger: logger.With(zap.String("layer", "service"), zap.String("component", "recovery")),
		cases:  make(map[string]Case),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Escalate records c and reports whether it was new.
func (s *Service) Escalate(ctx context.Context, c Case) bool {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	s.mu.Lock()
	if _, ok := s.cases[c.key()]; ok {
		s.mu.Unlock()
		return false
	}
	s.cases[c.key()] = c
	s.mu.Unlock()

	s.logger.Warn("escalated",
		zap.String("method", "Escalate"),
		zap.String("transaction_id", c.TransactionID),
		zap.String("account_id", c.AccountID),
		zap.String("external_ref", c.ExternalRef),
		zap.String("action", c.Action),
		zap.String("reason", c.Reason),
	)

	if s.rdb != nil {
		if b, err := json.Marshal(c); err == nil {
			if err := s.rdb.RPush(ctx, s.listKey, b).Err(); err != nil {
				s.logger.Error("redis mirror error", zap.String("method", "Escalate"), zap.String("key", s.listKey), zap.Error(err))
			}
		}
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.RecoveryRequested{
			TransactionID: c.TransactionID,
			AccountID:     c.AccountID,
			ExternalRef:   c.ExternalRef,
			Action:        c.Action,
			Reason:        c.Reason,
			At:            c.At,
		})
	}
	return true
}

// Resolve drops the case for id, a transaction id or external ref.
func (s *Service) Resolve(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[id]; !ok {
		return false
	}
	delete(s.cases, id)
	return true
}

// Cases returns the open cases, oldest first.
func (s *Service) Cases() []Case {
	s.mu.Lock()
	out := make([]Case, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
