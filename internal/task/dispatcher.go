package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/threadsift/threadsift/internal/platform/metrics"
)

// Dispatcher pulls the next runnable task from the queue and drives it to a
// terminal state, enforcing single concurrency. A task is runnable when it
// is queued and has a registered executor; queued ids without one are
// skipped in place, so execution order is "first queued id with work
// attached" rather than strictly FIFO.
type Dispatcher struct {
	store   *Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	baseCtx context.Context

	// busy guards against re-entrant double dispatch from overlapping
	// trigger calls while a selection is in progress.
	mu   sync.Mutex
	busy bool

	// wg tracks in-flight executor goroutines for clean shutdown.
	wg sync.WaitGroup
}

func newDispatcher(store *Store, baseCtx context.Context, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:   store,
		logger:  logger.With("component", "dispatcher"),
		metrics: m,
		baseCtx: baseCtx,
	}
}

// Trigger attempts one dispatch. Called when a new executor is attached and
// when a task reaches a terminal state. If a task is already running, a
// dispatch is in progress, or nothing in the queue has an executor, it does
// nothing.
func (d *Dispatcher) Trigger() {
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return
	}
	d.busy = true
	d.mu.Unlock()

	rec, ex, tok, ok := d.store.claimNext(d.baseCtx)

	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()

	if !ok {
		return
	}
	d.wg.Add(1)
	go d.run(rec, ex, tok)
}

// run executes a claimed task to completion. The record passed in is a
// snapshot from claim time; finalization always goes back through the store
// by id, which re-checks that the task is still running. That guards the
// race where a concurrent Cancel finalized the record while the executor
// was in flight: the stale resolution is then a logged no-op.
func (d *Dispatcher) run(rec Record, ex Executor, tok *CancelToken) {
	d.metrics.TaskRunning(1)
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("executor panicked",
				"task_id", rec.ID, "panic", fmt.Sprint(p))
			d.store.Fail(rec.ID, fmt.Sprintf("executor panic: %v", p))
		}
		d.store.release(rec.ID)
		d.metrics.TaskRunning(-1)
		d.countFinished(rec.ID)
		d.wg.Done()
		d.Trigger()
	}()

	res, err := ex(tok.Context(), rec, tok)
	switch {
	case err == nil:
		d.store.Complete(rec.ID, res)
	case errors.Is(err, ErrCancelled):
		// Executor observed the token. Cancel usually finalized the record
		// already; if only Abort was signalled, finalize with the
		// cancellation marker so callers can tell it apart from failure.
		d.store.Fail(rec.ID, cancelledMarker)
	default:
		d.store.Fail(rec.ID, err.Error())
	}
}

func (d *Dispatcher) countFinished(id string) {
	if fin, ok := d.store.Get(id); ok && fin.Status.Terminal() {
		d.metrics.TaskFinished(string(fin.Status))
	}
}

// Wait blocks until all in-flight executors have returned. Used during
// shutdown so the final snapshot reflects their outcome.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
