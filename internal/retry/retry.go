// Package retry provides a generic wrapper for async operations with
// exponential backoff and retryability classification. AI calls and storage
// writes compose on top of it; retry never invents an error of its own, the
// final attempt's error is propagated verbatim unless a fallback is set.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config controls Do. The zero value performs a single attempt.
type Config[T any] struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 mean 1.
	MaxAttempts int

	// InitialDelay is the sleep before the second attempt. Subsequent delays
	// grow by Multiplier per attempt, capped at MaxDelay when set.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// RetryableKinds lists sentinel errors that are considered transient,
	// matched with errors.Is. Errors marked with Transient are retryable
	// regardless.
	RetryableKinds []error

	// OnRetry is invoked after each failed attempt that will be retried,
	// with the 1-based attempt number and the error. For observability only.
	OnRetry func(attempt int, err error)

	// Fallback, when set, replaces the final error: its result (or error) is
	// returned instead of the last attempt's error.
	Fallback func(ctx context.Context) (T, error)
}

// transientError marks an error as retryable independent of its kind.
type transientError struct {
	err error
}

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() error   { return e.err }
func (e *transientError) Retryable() bool { return true }

// Transient wraps err so Do treats it as retryable. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Retryable reports whether err carries an intrinsic retryable flag, either
// via Transient or by implementing `Retryable() bool` itself.
func Retryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

func (c Config[T]) retryable(err error) bool {
	if Retryable(err) {
		return true
	}
	for _, kind := range c.RetryableKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Do calls fn until it succeeds, the error is classified non-retryable, or
// attempts are exhausted. Backoff between attempts is
// min(InitialDelay * Multiplier^(attempt-1), MaxDelay) and honors context
// cancellation.
func Do[T any](ctx context.Context, cfg Config[T], fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !cfg.retryable(err) || attempt == attempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if err := sleep(ctx, backoff(attempt, cfg.InitialDelay, cfg.MaxDelay, multiplier)); err != nil {
			lastErr = err
			break
		}
	}

	if cfg.Fallback != nil {
		return cfg.Fallback(ctx)
	}
	return zero, lastErr
}

// backoff computes the delay after the attempt-th failure (1-based).
func backoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	d := float64(initial)
	for i := 1; i < attempt; i++ {
		d *= multiplier
	}
	delay := time.Duration(d)
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
