package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/threadsift/threadsift/internal/task"
)

// Emitter is an in-memory broadcast of task status changes. It implements
// task.Notifier.
type Emitter struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      *slog.Logger
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		logger: logger.With("component", "status_emitter"),
	}
}

// Subscribe adds a subscriber for future events.
func (e *Emitter) Subscribe(sub Subscriber) {
	e.mu.Lock()
	e.subscribers = append(e.subscribers, sub)
	count := len(e.subscribers)
	e.mu.Unlock()
	e.logger.Debug("subscriber registered", "subscriber_count", count)
}

// Publish delivers a record snapshot to every subscriber. A panicking
// subscriber is logged and skipped; it never propagates into the task core.
func (e *Emitter) Publish(rec task.Record) {
	e.mu.RLock()
	subscribers := make([]Subscriber, len(e.subscribers))
	copy(subscribers, e.subscribers)
	e.mu.RUnlock()

	if len(subscribers) == 0 {
		// No subscriber attached is the normal idle state, not an error.
		e.logger.Debug("status event with no subscribers",
			"task_id", rec.ID, "status", rec.Status)
		return
	}

	ev := StatusEvent{Task: rec, ObservedAt: time.Now()}
	for i, sub := range subscribers {
		e.deliver(i, sub, ev)
	}
}

func (e *Emitter) deliver(idx int, sub Subscriber, ev StatusEvent) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("subscriber panicked handling status event",
				"subscriber_index", idx,
				"task_id", ev.Task.ID,
				"panic", p)
		}
	}()
	sub.Handle(ev)
}

// Ensure Emitter satisfies the task core's notification sink.
var _ task.Notifier = (*Emitter)(nil)
