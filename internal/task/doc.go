// Package task manages the lifecycle of comment extraction and analysis jobs.
// It provides a single-concurrency dispatch queue, cooperative cancellation,
// debounced crash-safe persistence with recovery on restart, and progress
// normalization for heterogeneous stage reports.
package task
