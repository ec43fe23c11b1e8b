package events

import (
	"time"

	"github.com/threadsift/threadsift/internal/task"
)

// StatusEvent carries a snapshot of a task record after an observable
// change: creation, start, progress, or a terminal transition.
type StatusEvent struct {
	Task       task.Record `json:"task"`
	ObservedAt time.Time   `json:"observed_at"`
}

// Subscriber receives status events. Handle must not block for long; it runs
// on the mutating goroutine's notification path.
type Subscriber interface {
	Handle(ev StatusEvent)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ev StatusEvent)

// Handle calls f.
func (f SubscriberFunc) Handle(ev StatusEvent) { f(ev) }
