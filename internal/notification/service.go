package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"payrecon/kit/observability"
)

const DefaultChannelPrefix = "payrecon:notify:"

// Message is what an account holder is told about one of their transactions.
type Message struct {
	AccountID     string    `json:"account_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Text          string    `json:"text"`
	At            time.Time `json:"at"`
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Option func(*Service)

// WithRedis also publishes every message on prefix+account id.
func WithRedis(rdb redisPublisher, prefix string) Option {
	return func(s *Service) {
		if prefix == "" {
			prefix = DefaultChannelPrefix
		}
		s.rdb = rdb
		s.prefix = prefix
	}
}

type Service struct {
	logger *zap.Logger
	rdb    redisPublisher
	prefix string
	now    func() time.Time
}

func NewService(logger *zap.Logger, opts ...Option) *Service {
	s := &Service{logger: observability.Component(logger, "service", "notification"), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Notify(ctx context.Context, accountID, transactionID, text string) {
	msg := Message{AccountID: accountID, TransactionID: transactionID, Text: text, At: s.now().UTC()}
	s.logger.Info("notify", zap.String("account_id", accountID), zap.String("transaction_id", transactionID), zap.String("msg", text))

	if s.rdb == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, s.prefix+accountID, b).Err(); err != nil {
		s.logger.Error("notify error", zap.String("method", "Notify"), zap.String("account_id", accountID), zap.Error(err))
	}
}
