package task

import "context"

// newRemoteExecutor returns an executor for tasks whose actual work happens
// in an external extraction agent. The agent reports progress and the final
// outcome through the service API; the executor's only job is to occupy the
// single running slot until the record is finalized or cancelled.
func newRemoteExecutor(st *Store) Executor {
	return func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		select {
		case <-st.Finished(rec.ID):
			// Finalized externally via CompleteTask/FailTask. The dispatcher's
			// own finalization then sees a non-running record and no-ops.
			return Result{}, nil
		case <-tok.Done():
			return Result{}, ErrCancelled
		}
	}
}
