// Package store provides the durable key-value store the persistence layer
// writes task snapshots through. Implementations exist for memory (tests and
// ephemeral runs), sqlite (single-process file deployments), redis, and
// postgres. Failures are plain errors; retry policy lives with the caller.
package store
