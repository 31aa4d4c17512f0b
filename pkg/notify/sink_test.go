package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"agencydesk/pkg/kafka"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	channel string
	message any
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message = message
	return redis.NewIntResult(1, nil)
}

type fakeProducer struct {
	msgs []kafka.Message
}

func (f *fakeProducer) Publish(_ context.Context, msg kafka.Message) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestRedisSink_Send(t *testing.T) {
	rdb := &fakeRedis{}
	sink := NewRedisSink(rdb, WithChannelPrefix("desk:"))

	err := sink.Send(context.Background(), Event{Topic: LockTopic("req-1"), Payload: map[string]bool{"locked": true}})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if rdb.channel != "desk:lock-status/req-1" {
		t.Errorf("channel = %q", rdb.channel)
	}
	var decoded map[string]bool
	if err := json.Unmarshal(rdb.message.([]byte), &decoded); err != nil || !decoded["locked"] {
		t.Errorf("message = %s, err = %v", rdb.message, err)
	}
}

func TestKafkaSink_Send(t *testing.T) {
	producer := &fakeProducer{}
	sink := NewKafkaSink(producer, "desk")
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	err := sink.Send(context.Background(), Event{Topic: AvailabilityTopic("agency-1"), Payload: []string{"09:00"}, Timestamp: at})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(producer.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(producer.msgs))
	}
	msg := producer.msgs[0]
	if msg.Key != "availability/agency-1" || msg.GetEventType() != "availability/agency-1" {
		t.Errorf("key = %q, event type = %q", msg.Key, msg.GetEventType())
	}
	if msg.Headers[kafka.HeaderSource] != "desk" {
		t.Errorf("source = %q", msg.Headers[kafka.HeaderSource])
	}
	if string(msg.Value) != `["09:00"]` {
		t.Errorf("value = %s", msg.Value)
	}
}
