package events_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadsift/threadsift/internal/events"
	"github.com/threadsift/threadsift/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitterDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	e := events.NewEmitter(testLogger())

	var first, second []string
	e.Subscribe(events.SubscriberFunc(func(ev events.StatusEvent) {
		first = append(first, ev.Task.ID)
	}))
	e.Subscribe(events.SubscriberFunc(func(ev events.StatusEvent) {
		second = append(second, ev.Task.ID)
	}))

	e.Publish(task.Record{ID: "t1", Status: task.StatusPending})
	e.Publish(task.Record{ID: "t2", Status: task.StatusRunning})

	assert.Equal(t, []string{"t1", "t2"}, first)
	assert.Equal(t, []string{"t1", "t2"}, second)
}

func TestEmitterNoSubscribersIsSuccess(t *testing.T) {
	t.Parallel()

	e := events.NewEmitter(testLogger())
	assert.NotPanics(t, func() {
		e.Publish(task.Record{ID: "t1"})
	})
}

func TestEmitterSurvivesPanickingSubscriber(t *testing.T) {
	t.Parallel()

	e := events.NewEmitter(testLogger())

	var delivered []string
	e.Subscribe(events.SubscriberFunc(func(ev events.StatusEvent) {
		panic("subscriber bug")
	}))
	e.Subscribe(events.SubscriberFunc(func(ev events.StatusEvent) {
		delivered = append(delivered, ev.Task.ID)
	}))

	require.NotPanics(t, func() {
		e.Publish(task.Record{ID: "t1"})
	})
	assert.Equal(t, []string{"t1"}, delivered, "later subscribers still receive the event")
}

func TestEmitterEventCarriesObservationTime(t *testing.T) {
	t.Parallel()

	e := events.NewEmitter(testLogger())

	var got events.StatusEvent
	e.Subscribe(events.SubscriberFunc(func(ev events.StatusEvent) { got = ev }))
	e.Publish(task.Record{ID: "t1", Status: task.StatusCompleted})

	assert.Equal(t, "t1", got.Task.ID)
	assert.False(t, got.ObservedAt.IsZero())
}
