package store

import "errors"

// Common store errors used across all KV implementations.
var (
	// ErrUnavailable is returned when the backing store cannot be reached.
	// It is a transient condition; callers normally retry it.
	ErrUnavailable = errors.New("store unavailable")

	// ErrClosed is returned when an operation is attempted after Close.
	ErrClosed = errors.New("store closed")

	// ErrUnknownDriver is returned by Open for an unrecognized driver name.
	ErrUnknownDriver = errors.New("unknown store driver")
)
