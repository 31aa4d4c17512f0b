package notify

import (
	"context"
	"time"
)

// Logical topics published by the core services.
const (
	TopicLockStatus     = "lock-status"
	TopicAvailability   = "availability"
	TopicSlotManagement = "slot-management"
	TopicRequests       = "requests"
	TopicRequestUpdated = "requests/updated"
)

// Publisher is the fire-and-forget port used by the services. It never blocks on delivery
// and never reports delivery failures to the caller.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// Sink delivers a single event to a backend.
type Sink interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

type Event struct {
	Topic     string
	Payload   any
	Timestamp time.Time
}

func LockTopic(requestID string) string {
	return TopicLockStatus + "/" + requestID
}

func AvailabilityTopic(agencyID string) string {
	return TopicAvailability + "/" + agencyID
}
