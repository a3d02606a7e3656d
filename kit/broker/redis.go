package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "payrecon_events"

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Envelope is the wire form of an event mirrored to Redis.
type Envelope struct {
	Event     string          `json:"event"`
	Key       string          `json:"key,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// RedisPublisher mirrors bus events onto a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     redisPublisher
	channel string
	now     func() time.Time
}

func NewRedisPublisher(rdb redisPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel, now: time.Now}
}

// Handle has the Handler signature so it can be passed to Bus.SubscribeAll.
func (p *RedisPublisher) Handle(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.Name(), err)
	}
	env := Envelope{Event: evt.Name(), Payload: payload, Timestamp: p.now().UTC()}
	if k, ok := evt.(Keyed); ok {
		env.Key = k.PartitionKey()
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Name(), err)
	}
	return nil
}
