package notify

import (
	"context"

	"agencydesk/pkg/kafka"
)

const schemaVersion = "1"

type kafkaPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaSink writes every logical topic to one Kafka topic. The logical topic is the
// message key and the event-type header.
type KafkaSink struct {
	producer kafkaPublisher
	source   string
}

func NewKafkaSink(producer kafkaPublisher, source string) *KafkaSink {
	return &KafkaSink{producer: producer, source: source}
}

func (s *KafkaSink) Send(ctx context.Context, event Event) error {
	msg := kafka.NewMessage().
		WithKey(event.Topic).
		WithValue(event.Payload).
		WithEventType(event.Topic).
		WithSource(s.source).
		WithSchemaVersion(schemaVersion).
		WithTimestamp(event.Timestamp).
		Build()
	return s.producer.Publish(ctx, msg)
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
