package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, st *Store) *Dispatcher {
	t.Helper()
	d := newDispatcher(st, context.Background(), nil, testLogger())
	st.bind(nil, d.Trigger)
	return d
}

func waitFinished(t *testing.T, st *Store, id string) Record {
	t.Helper()
	select {
	case <-st.Finished(id):
	case <-time.After(2 * time.Second):
		t.Fatalf("task %s did not finish in time", id)
	}
	rec, ok := st.Get(id)
	require.True(t, ok)
	return rec
}

func TestDispatcherRunsSingleTask(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	rec := st.Create(KindAnalyze, "https://example.com/t/1", "youtube", 0)
	st.SetExecutor(rec.ID, func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		return Result{TokensUsed: 12, ItemCount: 3}, nil
	})

	got := waitFinished(t, st, rec.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 12, got.TokensUsed)
	d.Wait()
}

func TestDispatcherSkipsTasksWithoutExecutor(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	a := st.Create(KindExtract, "https://example.com/t/a", "reddit", 0)
	b := st.Create(KindExtract, "https://example.com/t/b", "reddit", 0)
	c := st.Create(KindExtract, "https://example.com/t/c", "reddit", 0)

	var ran []string
	exec := func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		ran = append(ran, rec.ID)
		return Result{}, nil
	}

	// Only b and c get work attached; a stays queued but is skipped in place.
	st.SetExecutor(b.ID, exec)
	waitFinished(t, st, b.ID)
	st.SetExecutor(c.ID, exec)
	waitFinished(t, st, c.ID)
	d.Wait()

	assert.Equal(t, []string{b.ID, c.ID}, ran)
	got, _ := st.Get(a.ID)
	assert.Equal(t, StatusPending, got.Status, "executor-less task never runs")
}

func TestDispatcherSingleConcurrency(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	releaseA := make(chan struct{})
	a := st.Create(KindExtract, "https://example.com/t/a", "reddit", 0)
	b := st.Create(KindExtract, "https://example.com/t/b", "reddit", 0)

	st.SetExecutor(a.ID, func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		<-releaseA
		return Result{}, nil
	})
	st.SetExecutor(b.ID, func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		return Result{}, nil
	})

	// a occupies the slot, b must wait despite having an executor.
	require.Eventually(t, func() bool {
		rec, _ := st.Get(a.ID)
		return rec.Status == StatusRunning
	}, time.Second, 5*time.Millisecond)
	got, _ := st.Get(b.ID)
	assert.Equal(t, StatusPending, got.Status)

	close(releaseA)
	waitFinished(t, st, a.ID)
	bDone := waitFinished(t, st, b.ID)
	assert.Equal(t, StatusCompleted, bDone.Status)
	d.Wait()
}

func TestDispatcherFailsTaskOnExecutorError(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	rec := st.Create(KindExtract, "https://example.com/t/1", "reddit", 0)
	st.SetExecutor(rec.ID, func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		return Result{}, errors.New("scrape blocked")
	})

	got := waitFinished(t, st, rec.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "scrape blocked", got.Error)
	assert.False(t, got.Cancelled())
	d.Wait()
}

func TestDispatcherRecoversExecutorPanic(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	boom := st.Create(KindExtract, "https://example.com/t/1", "reddit", 0)
	next := st.Create(KindExtract, "https://example.com/t/2", "reddit", 0)

	st.SetExecutor(boom.ID, func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		panic("executor bug")
	})
	st.SetExecutor(next.ID, func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		return Result{}, nil
	})

	got := waitFinished(t, st, boom.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "executor panic")

	// The panic must not wedge the dispatch loop.
	nextDone := waitFinished(t, st, next.ID)
	assert.Equal(t, StatusCompleted, nextDone.Status)
	d.Wait()
}

func TestCancelWhileExecutorInFlight(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	started := make(chan struct{})
	rec := st.Create(KindExtract, "https://example.com/t/1", "reddit", 0)
	st.SetExecutor(rec.ID, func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		close(started)
		<-tok.Done()
		return Result{}, ErrCancelled
	})

	<-started
	st.Cancel(rec.ID)

	got := waitFinished(t, st, rec.ID)
	assert.True(t, got.Cancelled())
	d.Wait()

	// The executor's late resolution must not overwrite the cancellation.
	final, _ := st.Get(rec.ID)
	assert.True(t, final.Cancelled())
}

func TestStaleSuccessAfterCancelIsIgnored(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	started := make(chan struct{})
	proceed := make(chan struct{})
	rec := st.Create(KindExtract, "https://example.com/t/1", "reddit", 0)
	st.SetExecutor(rec.ID, func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		close(started)
		<-proceed
		// Executor never looked at the token and claims success.
		return Result{TokensUsed: 42}, nil
	})

	<-started
	st.Cancel(rec.ID)
	close(proceed)
	d.Wait()

	got, _ := st.Get(rec.ID)
	assert.True(t, got.Cancelled(), "stale success must not resurrect a cancelled task")
	assert.Zero(t, got.TokensUsed)
}

func TestAbortSignalsWithoutFinalizing(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	started := make(chan struct{})
	rec := st.Create(KindExtract, "https://example.com/t/1", "reddit", 0)
	st.SetExecutor(rec.ID, func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		close(started)
		<-tok.Done()
		// Wind down gracefully with a partial result.
		return Result{ItemCount: 17}, nil
	})

	<-started
	st.Abort(rec.ID)

	got := waitFinished(t, st, rec.ID)
	assert.Equal(t, StatusCompleted, got.Status, "abort lets the executor choose its own ending")
	d.Wait()
}

func TestRemoteExecutorWaitsForExternalCompletion(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	rec := st.Create(KindExtract, "https://example.com/t/1", "reddit", 0)
	st.SetExecutor(rec.ID, newRemoteExecutor(st))

	require.Eventually(t, func() bool {
		got, _ := st.Get(rec.ID)
		return got.Status == StatusRunning
	}, time.Second, 5*time.Millisecond)

	st.UpdateProgress(rec.ID, 60, "extracted 120 comments")
	st.Complete(rec.ID, Result{ItemCount: 120})

	got := waitFinished(t, st, rec.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	d.Wait()
}

func TestRemoteExecutorHonorsCancellation(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, Options{})
	d := newTestDispatcher(t, st)

	rec := st.Create(KindExtract, "https://example.com/t/1", "reddit", 0)
	st.SetExecutor(rec.ID, newRemoteExecutor(st))

	require.Eventually(t, func() bool {
		got, _ := st.Get(rec.ID)
		return got.Status == StatusRunning
	}, time.Second, 5*time.Millisecond)

	st.Cancel(rec.ID)
	got := waitFinished(t, st, rec.ID)
	assert.True(t, got.Cancelled())
	d.Wait()
}
