package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadsift/threadsift/internal/retry"
)

var errBoom = errors.New("boom")

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := retry.Do(context.Background(), retry.Config[int]{MaxAttempts: 3}, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	var attempts []int
	cfg := retry.Config[string]{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, err error) {
			attempts = append(attempts, attempt)
		},
	}

	v, err := retry.Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", retry.Transient(errBoom)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	calls := 0
	onRetryCalled := false
	cfg := retry.Config[int]{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		OnRetry:      func(int, error) { onRetryCalled = true },
	}

	_, err := retry.Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, errBoom
	})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls, "non-retryable error must not be retried")
	assert.False(t, onRetryCalled)
}

func TestDoRetryableKinds(t *testing.T) {
	t.Parallel()

	calls := 0
	cfg := retry.Config[int]{
		MaxAttempts:    3,
		InitialDelay:   time.Millisecond,
		RetryableKinds: []error{errBoom},
	}

	_, err := retry.Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, errBoom
	})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls, "sentinel listed in RetryableKinds is retried to exhaustion")
}

func TestDoReturnsLastErrorVerbatim(t *testing.T) {
	t.Parallel()

	errFinal := errors.New("final failure")
	calls := 0
	cfg := retry.Config[int]{MaxAttempts: 2, InitialDelay: time.Millisecond}

	_, err := retry.Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, retry.Transient(errBoom)
		}
		return 0, retry.Transient(errFinal)
	})

	require.ErrorIs(t, err, errFinal)
	assert.NotErrorIs(t, err, errBoom)
}

func TestDoFallbackReplacesFinalError(t *testing.T) {
	t.Parallel()

	cfg := retry.Config[int]{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		Fallback: func(ctx context.Context) (int, error) {
			return 7, nil
		},
	}

	v, err := retry.Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 0, retry.Transient(errBoom)
	})

	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDoHonorsContextCancellationDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := retry.Config[int]{
		MaxAttempts:  3,
		InitialDelay: time.Hour,
	}

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := retry.Do(ctx, cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, retry.Transient(errBoom)
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryableClassification(t *testing.T) {
	t.Parallel()

	assert.False(t, retry.Retryable(errBoom))
	assert.True(t, retry.Retryable(retry.Transient(errBoom)))
	assert.False(t, retry.Retryable(nil))

	// Transient preserves the wrapped error for errors.Is checks.
	assert.ErrorIs(t, retry.Transient(errBoom), errBoom)
	assert.NoError(t, retry.Transient(nil))
}
