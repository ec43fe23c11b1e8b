package store

import "context"

// KV is the durable store consumed by the persistence layer. Get reports
// absence through the boolean rather than an error, so callers can tell "no
// snapshot yet" apart from storage failure.
type KV interface {
	// Get returns the value for key, or ok=false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the given keys. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error

	// Close releases the underlying connection or file handle.
	Close() error
}
