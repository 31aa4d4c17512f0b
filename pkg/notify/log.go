package notify

import (
	"context"

	"agencydesk/pkg/logger"
)

// LogSink writes events to the structured log. Used when no broker is configured.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, event Event) error {
	s.log.Info("Event published", "topic", event.Topic, "payload", event.Payload)
	return nil
}

func (s *LogSink) Close() error {
	return nil
}
