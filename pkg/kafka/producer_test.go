package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishRunsMiddlewareInOrder(t *testing.T) {
	writer := &fakeWriter{}
	p := newProducer(writer, nil, "events", "")

	var order []string
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		order = append(order, "first")
		return next(ctx, msg)
	})
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		order = append(order, "second")
		if msg.Topic != "events" {
			t.Errorf("msg.Topic = %q, want producer topic", msg.Topic)
		}
		return next(ctx, msg)
	})

	msg := NewMessage().WithKey("req-1").WithValue(map[string]string{"a": "b"}).WithEventType("requests").Build()
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("middleware order = %v", order)
	}
	if len(writer.written) != 1 {
		t.Fatalf("written = %d, want 1", len(writer.written))
	}
	if got := header(writer.written[0], HeaderEventType); got != "requests" {
		t.Errorf("event-type header = %q", got)
	}
	if header(writer.written[0], HeaderEventID) == "" {
		t.Error("event-id header missing")
	}
}

func TestProducer_RejectsInvalidMessages(t *testing.T) {
	p := newProducer(&fakeWriter{}, nil, "events", "")

	if err := p.Publish(context.Background(), NewMessage().WithRawValue([]byte("x")).Build()); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("missing key error = %v, want ErrEmptyKey", err)
	}
	if err := p.Publish(context.Background(), NewMessage().WithKey("k").Build()); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("missing value error = %v, want ErrEmptyValue", err)
	}
}

func TestProducer_FailedWriteGoesToDLQ(t *testing.T) {
	writeErr := errors.New("broker down")
	writer := &fakeWriter{err: writeErr}
	dlq := &fakeWriter{}
	p := newProducer(writer, dlq, "events", "events.dlq")

	msg := NewMessage().WithKey("k").WithRawValue([]byte(`{}`)).Build()
	err := p.Publish(context.Background(), msg)
	if !errors.Is(err, writeErr) {
		t.Fatalf("Publish() error = %v, want %v", err, writeErr)
	}
	if len(dlq.written) != 1 {
		t.Fatalf("dlq written = %d, want 1", len(dlq.written))
	}
	if got := header(dlq.written[0], HeaderOriginalTopic); got != "events" {
		t.Errorf("original-topic = %q", got)
	}
	if got := header(dlq.written[0], HeaderDLQError); got != "broker down" {
		t.Errorf("dlq-error = %q", got)
	}
	if _, ok := msg.Headers[HeaderDLQError]; ok {
		t.Error("caller message headers were mutated")
	}
}

func TestProducer_Close(t *testing.T) {
	writer := &fakeWriter{}
	p := newProducer(writer, nil, "events", "")

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !writer.closed {
		t.Error("writer not closed")
	}
	err := p.Publish(context.Background(), NewMessage().WithKey("k").WithRawValue([]byte("v")).Build())
	if !errors.Is(err, ErrProducerClosed) {
		t.Errorf("Publish after Close error = %v", err)
	}
}
