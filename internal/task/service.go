package task

import (
	"context"
	"log/slog"
	"sync"

	"github.com/threadsift/threadsift/internal/platform/metrics"
	"github.com/threadsift/threadsift/internal/store"
)

// ExecutorFactory builds an executor for a freshly created task. Factories
// are registered per kind so the service can attach work at creation time.
type ExecutorFactory func(rec Record) Executor

// ServiceConfig wires a Service together.
type ServiceConfig struct {
	// Options configures store policy (retention, stage weights, clock).
	Options Options

	// KV is the durable store for snapshots. Nil disables persistence:
	// Initialize and snapshot scheduling become no-ops.
	KV store.KV

	// Persistence configures debounce and write retry.
	Persistence PersistenceConfig

	// Notifier receives record snapshots after observable changes. Optional.
	Notifier Notifier

	// Metrics collectors. Optional.
	Metrics *metrics.Metrics

	// BaseContext is the parent for executor contexts. Cancelling it aborts
	// all in-flight executors at shutdown.
	BaseContext context.Context

	Logger *slog.Logger
}

// Service is the exposed surface of the task core: it owns the store, the
// dispatcher, and the persistence manager, and routes every operation
// through them.
type Service struct {
	store      *Store
	dispatcher *Dispatcher
	persister  *Persister
	logger     *slog.Logger
	metrics    *metrics.Metrics

	facMu     sync.RWMutex
	factories map[Kind]ExecutorFactory
}

// NewService builds the task core. Call Initialize once before use to
// perform crash recovery.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	st := NewStore(cfg.Options, logger)
	st.SetNotifier(cfg.Notifier)
	persister := newPersister(st, cfg.KV, cfg.Persistence, cfg.Metrics, logger)
	dispatcher := newDispatcher(st, cfg.BaseContext, cfg.Metrics, logger)
	st.bind(persister.Schedule, dispatcher.Trigger)

	return &Service{
		store:      st,
		dispatcher: dispatcher,
		persister:  persister,
		logger:     logger.With("component", "task_service"),
		metrics:    cfg.Metrics,
		factories:  make(map[Kind]ExecutorFactory),
	}
}

// Initialize performs crash recovery from the persisted snapshot. Must be
// called once, before any task is created or dispatched.
func (s *Service) Initialize(ctx context.Context) error {
	return s.persister.Initialize(ctx)
}

// RegisterFactory installs the executor factory for a task kind. Tasks of
// that kind get an executor attached automatically at creation.
func (s *Service) RegisterFactory(kind Kind, f ExecutorFactory) {
	s.facMu.Lock()
	s.factories[kind] = f
	s.facMu.Unlock()
}

func (s *Service) factory(kind Kind) ExecutorFactory {
	s.facMu.RLock()
	defer s.facMu.RUnlock()
	return s.factories[kind]
}

// CreateTask allocates a pending task and enqueues it. If a factory is
// registered for the kind, an executor is attached immediately, which
// triggers dispatch. Never fails.
func (s *Service) CreateTask(kind Kind, url, platform string, maxItems int) Record {
	rec := s.store.Create(kind, url, platform, maxItems)
	s.metrics.TaskCreated(string(kind))
	if f := s.factory(kind); f != nil {
		s.store.SetExecutor(rec.ID, f(rec))
	}
	return rec
}

// SetExecutor registers the work function for a task and triggers dispatch.
func (s *Service) SetExecutor(id string, ex Executor) {
	s.store.SetExecutor(id, ex)
}

// AttachRemote attaches an executor for a task driven by an external agent:
// it holds the running slot until CompleteTask, FailTask, or CancelTask is
// called over the API, honoring cancellation in the meantime.
func (s *Service) AttachRemote(id string) {
	s.store.SetExecutor(id, newRemoteExecutor(s.store))
}

// StartTask transitions a pending task to running. Normally the dispatcher's
// job; exposed for callers that manage execution themselves.
func (s *Service) StartTask(id string) error {
	return s.store.Start(id)
}

// CancelTask finalizes a task as cancelled and signals its token.
func (s *Service) CancelTask(id string) {
	s.store.Cancel(id)
}

// AbortTask signals the task's token without finalizing the record.
func (s *Service) AbortTask(id string) {
	s.store.Abort(id)
}

// UpdateProgress sets the coarse progress percent for a task.
func (s *Service) UpdateProgress(id string, percent int, message string) {
	s.store.UpdateProgress(id, percent, message)
}

// UpdateDetailedProgress normalizes a stage report into the task's progress.
func (s *Service) UpdateDetailedProgress(id string, u ProgressUpdate) {
	s.store.UpdateDetailed(id, u)
}

// CompleteTask finalizes a running task as completed.
func (s *Service) CompleteTask(id string, res Result) {
	s.store.Complete(id, res)
}

// FailTask finalizes a task as failed.
func (s *Service) FailTask(id string, errMsg string) {
	s.store.Fail(id, errMsg)
}

// GetTask returns a copy of the record for id.
func (s *Service) GetTask(id string) (Record, bool) {
	return s.store.Get(id)
}

// AllTasks returns copies of all records in creation order.
func (s *Service) AllTasks() []Record {
	return s.store.All()
}

// TasksByStatus returns copies of all records with the given status.
func (s *Service) TasksByStatus(status Status) []Record {
	return s.store.ByStatus(status)
}

// ClearFinishedTasks deletes all terminal records, returning the count.
func (s *Service) ClearFinishedTasks() int {
	return s.store.ClearFinished()
}

// Shutdown waits for the in-flight executor (if any) and flushes a final
// snapshot. Callers wanting executors aborted should cancel BaseContext
// first.
func (s *Service) Shutdown(ctx context.Context) {
	s.dispatcher.Wait()
	s.persister.Flush(ctx)
	s.logger.Info("task service stopped")
}
