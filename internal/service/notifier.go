package service

import (
    "context"
    "time"

    "github.com/gatepass/backend/internal/queue"
)

// Notifier delivers visit lifecycle events to interested parties.
// Delivery is best-effort: implementations must never block the
// caller and must never surface failures back into the request path.
type Notifier interface {
    Notify(event queue.VisitEvent)
}

// QueueNotifier publishes events to the message broker in a
// background goroutine with its own timeout, detached from the
// request context so an already-answered request cannot cancel the
// publish.
type QueueNotifier struct{}

// NewQueueNotifier returns a broker-backed Notifier.
func NewQueueNotifier() *QueueNotifier {
    return &QueueNotifier{}
}

// Notify publishes the event asynchronously.  Errors are logged by
// the publisher and otherwise dropped.
func (n *QueueNotifier) Notify(event queue.VisitEvent) {
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = queue.PublishVisitEvent(ctx, event)
    }()
}

// notify is a nil-safe helper used by the services so tests can run
// without a broker by leaving the notifier unset.
func notify(n Notifier, event queue.VisitEvent) {
    if n == nil {
        return
    }
    n.Notify(event)
}
