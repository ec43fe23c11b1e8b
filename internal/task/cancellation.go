package task

import (
	"context"
	"sync"
)

// CancelToken is a cooperative cancellation signal issued per running task.
// The dispatcher never preempts an executor; cancellation only flips state
// that the executor and its I/O layer are expected to observe, either by
// polling Cancelled, selecting on Done, or passing Context into blocking
// calls.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	callbacks []func()
}

// newCancelToken creates a token whose Context is derived from parent, so
// that in-flight I/O started from it is aborted when the token is cancelled.
func newCancelToken(parent context.Context) *CancelToken {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{ctx: ctx, cancel: cancel}
}

// Cancel signals cancellation. It is idempotent; callbacks registered via
// OnCancel run exactly once, on the first call.
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	t.cancel()
	for _, fn := range callbacks {
		fn()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done returns a channel closed on cancellation, for use in select loops.
func (t *CancelToken) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context returns a context cancelled together with the token. Executors
// should pass it into network and storage calls so cancellation aborts
// in-flight I/O.
func (t *CancelToken) Context() context.Context {
	return t.ctx
}

// OnCancel registers fn to run when the token is cancelled. If the token is
// already cancelled, fn runs immediately.
func (t *CancelToken) OnCancel(fn func()) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return
	}
	t.callbacks = append(t.callbacks, fn)
	t.mu.Unlock()
}
