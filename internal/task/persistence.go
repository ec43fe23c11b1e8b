package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/threadsift/threadsift/internal/platform/metrics"
	"github.com/threadsift/threadsift/internal/retry"
	"github.com/threadsift/threadsift/internal/store"
)

// PersistenceConfig controls snapshotting. The zero value gets defaults.
type PersistenceConfig struct {
	// Key is the KV key the snapshot is written under.
	Key string

	// Debounce is how long after the first mutation in a burst the snapshot
	// is written. Further mutations inside the window coalesce into the same
	// write.
	Debounce time.Duration

	// Retry settings for the KV write.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (c PersistenceConfig) withDefaults() PersistenceConfig {
	if c.Key == "" {
		c.Key = "tasks:snapshot"
	}
	if c.Debounce <= 0 {
		c.Debounce = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	return c
}

// Persister snapshots store state to a durable KV, debounced so bursts of
// mutations coalesce into one write. Write failures are retried and, when
// exhausted, logged and dropped: persistence is best effort and never blocks
// task progress.
type Persister struct {
	kv      store.KV
	st      *Store
	cfg     PersistenceConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	scheduled bool
	timer     *time.Timer
}

// newPersister creates a persister. kv may be nil, which disables
// persistence entirely; Schedule and Initialize become no-ops.
func newPersister(st *Store, kv store.KV, cfg PersistenceConfig, m *metrics.Metrics, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		kv:      kv,
		st:      st,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "persistence"),
		metrics: m,
	}
}

// Schedule requests a debounced snapshot write. If one is already pending it
// does nothing.
func (p *Persister) Schedule() {
	if p.kv == nil {
		return
	}
	p.mu.Lock()
	if p.scheduled {
		p.mu.Unlock()
		return
	}
	p.scheduled = true
	p.timer = time.AfterFunc(p.cfg.Debounce, func() {
		p.mu.Lock()
		p.scheduled = false
		p.mu.Unlock()
		p.write(context.Background())
	})
	p.mu.Unlock()
}

// Flush cancels any pending debounce and writes the snapshot immediately.
// Used at shutdown so the final task states land on disk.
func (p *Persister) Flush(ctx context.Context) {
	if p.kv == nil {
		return
	}
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.scheduled = false
	p.mu.Unlock()
	p.write(ctx)
}

// write serializes the current store state and stores it through the retry
// executor. Failure after all attempts is swallowed.
func (p *Persister) write(ctx context.Context) {
	snap := p.st.snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		// Snapshot contents are plain records; this indicates a programming
		// error, not a storage fault.
		p.logger.Error("failed to serialize snapshot", "error", err)
		p.metrics.SnapshotWrite("error")
		return
	}

	_, err = retry.Do(ctx, p.retryConfig(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, retry.Transient(p.kv.Set(ctx, p.cfg.Key, data))
	})
	if err != nil {
		p.logger.Error("snapshot write failed, dropping",
			"error", err,
			"tasks", len(snap.Tasks))
		p.metrics.SnapshotWrite("error")
		return
	}
	p.metrics.SnapshotWrite("ok")
	p.logger.Debug("snapshot written",
		"tasks", len(snap.Tasks),
		"queued", len(snap.Queue))
}

// Initialize performs crash recovery. It loads the latest snapshot, restores
// tasks from it, forces any task that was pending or running at crash time
// to failed (their executor closures were never persisted and cannot be
// reattached), resets the queue, and writes the repaired snapshot back.
func (p *Persister) Initialize(ctx context.Context) error {
	if p.kv == nil {
		return nil
	}

	var found bool
	data, err := retry.Do(ctx, retry.Config[[]byte]{
		MaxAttempts:  p.cfg.MaxAttempts,
		InitialDelay: p.cfg.InitialDelay,
		MaxDelay:     p.cfg.MaxDelay,
		OnRetry:      p.onRetry,
	}, func(ctx context.Context) ([]byte, error) {
		v, ok, err := p.kv.Get(ctx, p.cfg.Key)
		if err != nil {
			return nil, retry.Transient(err)
		}
		found = ok
		return v, nil
	})
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		p.logger.Info("no snapshot found, starting fresh")
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		p.logger.Warn("snapshot is corrupt, starting fresh", "error", err)
		return nil
	}

	repaired := p.st.restore(snap)
	p.logger.Info("recovered task state",
		"tasks", len(snap.Tasks),
		"interrupted", repaired,
		"saved_at", snap.SavedAt)

	if repaired > 0 {
		p.write(ctx)
	}
	return nil
}

func (p *Persister) retryConfig() retry.Config[struct{}] {
	return retry.Config[struct{}]{
		MaxAttempts:  p.cfg.MaxAttempts,
		InitialDelay: p.cfg.InitialDelay,
		MaxDelay:     p.cfg.MaxDelay,
		OnRetry:      p.onRetry,
	}
}

func (p *Persister) onRetry(attempt int, err error) {
	p.metrics.RetryAttempt()
	p.logger.Warn("retrying snapshot store operation",
		"attempt", attempt, "error", err)
}
