package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"agencydesk/pkg/logger"
)

const sendTimeout = 5 * time.Second

// Async queues events for a pool of workers that deliver them to a Sink.
// A full queue drops the event.
type Async struct {
	sink    Sink
	log     *logger.Logger
	queue   chan Event
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
	sent    atomic.Int64
}

type Stats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Queued  int   `json:"queued"`
}

func NewAsync(sink Sink, log *logger.Logger, queueSize, workers int) *Async {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	a := &Async{
		sink:  sink,
		log:   log,
		queue: make(chan Event, queueSize),
	}
	for range workers {
		a.wg.Add(1)
		go a.work()
	}
	return a
}

func (a *Async) Publish(_ context.Context, topic string, payload any) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}

	select {
	case a.queue <- Event{Topic: topic, Payload: payload, Timestamp: time.Now()}:
	default:
		a.dropped.Add(1)
		a.log.Warn("Notification queue full, dropping event", "topic", topic)
	}
}

func (a *Async) work() {
	defer a.wg.Done()
	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := a.sink.Send(ctx, event)
		cancel()
		if err != nil {
			a.failed.Add(1)
			a.log.Error("Failed to publish notification", "topic", event.Topic, "error", err)
			continue
		}
		a.sent.Add(1)
	}
}

func (a *Async) Stats() Stats {
	return Stats{
		Sent:    a.sent.Load(),
		Failed:  a.failed.Load(),
		Dropped: a.dropped.Load(),
		Queued:  len(a.queue),
	}
}

// Close stops accepting events, drains the queue and closes the sink.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("Notification queue not drained before shutdown", "queued", len(a.queue))
	}
	return a.sink.Close()
}
