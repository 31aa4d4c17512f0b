package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink publishes JSON payloads on "<prefix>:<topic>" channels.
type RedisSink struct {
	rdb    redisPublisher
	prefix string
}

type RedisOption func(*RedisSink)

func WithChannelPrefix(prefix string) RedisOption {
	return func(s *RedisSink) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisSink(rdb redisPublisher, opts ...RedisOption) *RedisSink {
	s := &RedisSink{rdb: rdb, prefix: "agencydesk"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSink) Channel(topic string) string {
	if s.prefix == "" {
		return topic
	}
	return s.prefix + ":" + topic
}

func (s *RedisSink) Send(ctx context.Context, event Event) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Topic, err)
	}
	return s.rdb.Publish(ctx, s.Channel(event.Topic), data).Err()
}

// Close is a no-op. The client is owned by pkg/client.
func (s *RedisSink) Close() error {
	return nil
}
