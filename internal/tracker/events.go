package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

// eventQueue feeds the sink from its own goroutine. Push handlers only
// enqueue; when the buffer is full the event is dropped and counted.
type eventQueue struct {
	sink    EventSink
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan models.TrackingEvent
	done   chan struct{}
}

func newEventQueue(sink EventSink, size int, timeout time.Duration, logger *slog.Logger) *eventQueue {
	q := &eventQueue{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		ch:      make(chan models.TrackingEvent, size),
		done:    make(chan struct{}),
	}
	go q.drain()
	return q
}

func (q *eventQueue) enqueue(ev models.TrackingEvent) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- ev:
	default:
		observability.TrackerEvents.WithLabelValues("publish", "dropped").Inc()
		q.logger.Warn("tracking event dropped, sink backlog full", "kind", ev.Kind, "order_id", ev.OrderID)
	}
}

func (q *eventQueue) drain() {
	defer close(q.done)
	for ev := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.sink.Publish(ctx, ev); err != nil {
			q.logger.Warn("publish tracking event", "kind", ev.Kind, "order_id", ev.OrderID, "error", err)
		}
		cancel()
	}
}

// close stops accepting events and waits for the backlog to reach the sink.
func (q *eventQueue) close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}
