package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Distinguished error markers stored in Record.Error. Callers rely on these
// to tell cancellation and restart interruption apart from executor failures.
const (
	cancelledMarker   = "cancelled by user"
	interruptedMarker = "interrupted by restart"
)

// Common errors returned by the task package.
var (
	// ErrTaskNotFound is returned by Start when the id is unknown. All other
	// mutations degrade to logged no-ops so that late or duplicate calls from
	// a UI cannot crash the core.
	ErrTaskNotFound = errors.New("task not found")

	// ErrCancelled marks a failure caused by explicit cancellation.
	ErrCancelled = errors.New(cancelledMarker)
)

// DefaultRetainFinished is the number of terminal records kept by the
// automatic retention policy.
const DefaultRetainFinished = 50

// Executor performs the actual work for a task. It is supplied by the caller
// after creation, runs at most once, and is never persisted: on restart any
// task whose executor was lost is failed rather than resumed.
//
// ctx is cancelled together with tok, so passing it into network and storage
// calls makes cancellation abort in-flight I/O.
type Executor func(ctx context.Context, rec Record, tok *CancelToken) (Result, error)

// Notifier receives a snapshot of a record after every observable change.
// Publish is best-effort and at-least-once; having no subscriber is success.
type Notifier interface {
	Publish(rec Record)
}

// Options configures store policy. The stage-weight table and retention
// count are policy choices, not protocol requirements, so they are settable
// here; the defaults reproduce the values existing clients expect.
type Options struct {
	// RetainFinished caps how many terminal records are kept. After every
	// terminal transition the oldest excess records (by end time) are pruned.
	RetainFinished int

	// StageWeights overrides the stage->percent table used to normalize
	// detailed progress reports. Nil means DefaultStageWeights.
	StageWeights map[string]StageRange

	// Clock overrides the time source, for tests.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RetainFinished <= 0 {
		o.RetainFinished = DefaultRetainFinished
	}
	if o.StageWeights == nil {
		o.StageWeights = DefaultStageWeights()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Store is the authoritative in-memory map of task records plus the ordered
// pending-execution queue. All mutation goes through its methods; callers
// only ever hold record copies, never live references.
type Store struct {
	logger *slog.Logger
	opts   Options
	tr     *translator

	mu        sync.Mutex
	tasks     map[string]*Record
	order     []string
	queue     []string
	current   string
	executors map[string]Executor
	tokens    map[string]*CancelToken
	finishedC map[string]chan struct{}

	notifier  Notifier
	onMutate  func()
	onAdvance func()
}

// NewStore creates an empty store.
func NewStore(opts Options, logger *slog.Logger) *Store {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:    logger.With("component", "task_store"),
		opts:      opts,
		tr:        newTranslator(opts.StageWeights, opts.Clock),
		tasks:     make(map[string]*Record),
		executors: make(map[string]Executor),
		tokens:    make(map[string]*CancelToken),
		finishedC: make(map[string]chan struct{}),
	}
}

// SetNotifier installs the notification sink. Pass nil to disable.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// bind installs the persistence and dispatch hooks. Hooks always run after
// the store lock is released, so they may call back into the store.
func (s *Store) bind(onMutate, onAdvance func()) {
	s.mu.Lock()
	s.onMutate = onMutate
	s.onAdvance = onAdvance
	s.mu.Unlock()
}

// effects collects work to perform after the lock is released: observer
// notifications, a persistence schedule, and a dispatch trigger.
type effects struct {
	notify  []Record
	persist bool
	advance bool
}

func (s *Store) fire(e effects) {
	if s.notifier != nil {
		for _, rec := range e.notify {
			s.notifier.Publish(rec)
		}
	}
	if e.persist && s.onMutate != nil {
		s.onMutate()
	}
	if e.advance && s.onAdvance != nil {
		s.onAdvance()
	}
}

// Create allocates a new pending record, appends it to the queue, and
// schedules a persistence snapshot. It never fails.
func (s *Store) Create(kind Kind, url, platform string, maxItems int) Record {
	rec := &Record{
		ID:       newTaskID(),
		Kind:     kind,
		Status:   StatusPending,
		URL:      url,
		Platform: platform,
		MaxItems: maxItems,
	}

	s.mu.Lock()
	s.tasks[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	s.queue = append(s.queue, rec.ID)
	snapshot := rec.clone()
	s.mu.Unlock()

	s.logger.Info("task created",
		"task_id", rec.ID,
		"kind", kind,
		"platform", platform)
	s.fire(effects{notify: []Record{snapshot}, persist: true})
	return snapshot
}

// SetExecutor registers the work function for id and triggers dispatch. If
// the id fell out of the queue it is re-appended, provided the task is still
// pending.
func (s *Store) SetExecutor(id string, ex Executor) {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("executor for unknown task ignored", "task_id", id)
		return
	}
	if rec.Status.Terminal() {
		s.mu.Unlock()
		s.logger.Warn("executor for terminal task ignored",
			"task_id", id, "status", rec.Status)
		return
	}
	s.executors[id] = ex
	queued := false
	if rec.Status == StatusPending && !s.inQueueLocked(id) {
		s.queue = append(s.queue, id)
		queued = true
	}
	s.mu.Unlock()

	s.logger.Debug("executor attached", "task_id", id, "requeued", queued)
	s.fire(effects{persist: queued, advance: true})
}

// Start transitions a pending task to running. It is the only mutation that
// errors on an unknown id; a second Start on a running task is an idempotent
// no-op that does not reset the start time.
func (s *Store) Start(id string) error {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if rec.Status == StatusRunning {
		s.mu.Unlock()
		s.logger.Debug("task already running, start ignored", "task_id", id)
		return nil
	}
	if rec.Status.Terminal() {
		s.mu.Unlock()
		s.logger.Warn("start on terminal task ignored",
			"task_id", id, "status", rec.Status)
		return nil
	}
	if s.current != "" {
		s.mu.Unlock()
		s.logger.Warn("start refused, another task is running",
			"task_id", id, "running_task_id", s.current)
		return nil
	}
	s.removeFromQueueLocked(id)
	rec.Status = StatusRunning
	rec.StartTime = toMillis(s.opts.Clock())
	s.current = id
	snapshot := rec.clone()
	s.mu.Unlock()

	s.logger.Info("task started", "task_id", id, "kind", snapshot.Kind)
	s.fire(effects{notify: []Record{snapshot}, persist: true})
	return nil
}

// UpdateProgress sets the coarse progress percent, clamped to [0,100].
// Unknown ids and terminal records are logged no-ops.
func (s *Store) UpdateProgress(id string, percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("progress for unknown task ignored", "task_id", id)
		return
	}
	if rec.Status.Terminal() {
		s.mu.Unlock()
		s.logger.Debug("progress on terminal task ignored",
			"task_id", id, "status", rec.Status)
		return
	}
	rec.Progress = percent
	if message != "" {
		rec.Message = message
	}
	snapshot := rec.clone()
	s.mu.Unlock()

	s.fire(effects{notify: []Record{snapshot}, persist: true})
}

// UpdateDetailed normalizes a stage/count report into the record's progress
// percent and ETA estimate.
func (s *Store) UpdateDetailed(id string, u ProgressUpdate) {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("detailed progress for unknown task ignored", "task_id", id)
		return
	}
	if rec.Status.Terminal() {
		s.mu.Unlock()
		s.logger.Debug("detailed progress on terminal task ignored",
			"task_id", id, "status", rec.Status)
		return
	}
	pct := s.tr.percent(u)
	rec.Progress = pct
	rec.Detailed = &DetailedProgress{
		Stage:        u.Stage,
		Current:      u.Current,
		Total:        u.Total,
		ETASeconds:   s.tr.eta(rec.StartTime, pct),
		StageMessage: u.StageMessage,
	}
	if u.StageMessage != "" {
		rec.Message = u.StageMessage
	}
	snapshot := rec.clone()
	s.mu.Unlock()

	s.fire(effects{notify: []Record{snapshot}, persist: true})
}

// Complete finalizes a running task as completed. It is a logged no-op
// unless the task is currently running, which guards the race where a
// concurrent Cancel already finalized the record.
func (s *Store) Complete(id string, res Result) {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("complete for unknown task ignored", "task_id", id)
		return
	}
	if rec.Status != StatusRunning {
		s.mu.Unlock()
		s.logger.Warn("complete on non-running task ignored",
			"task_id", id, "status", rec.Status)
		return
	}
	rec.Status = StatusCompleted
	rec.Progress = 100
	rec.EndTime = toMillis(s.opts.Clock())
	rec.TokensUsed += res.TokensUsed
	if s.current == id {
		s.current = ""
	}
	s.markFinishedLocked(id)
	s.pruneLocked()
	snapshot := rec.clone()
	s.mu.Unlock()

	s.logger.Info("task completed",
		"task_id", id,
		"tokens_used", snapshot.TokensUsed,
		"items", res.ItemCount)
	s.fire(effects{notify: []Record{snapshot}, persist: true, advance: true})
}

// Fail finalizes a task as failed with the given error message. Terminal
// records are logged no-ops.
func (s *Store) Fail(id string, errMsg string) {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("fail for unknown task ignored", "task_id", id)
		return
	}
	if rec.Status.Terminal() {
		s.mu.Unlock()
		s.logger.Debug("fail on terminal task ignored",
			"task_id", id, "status", rec.Status)
		return
	}
	s.removeFromQueueLocked(id)
	rec.Status = StatusFailed
	rec.Error = errMsg
	rec.EndTime = toMillis(s.opts.Clock())
	if s.current == id {
		s.current = ""
	}
	s.markFinishedLocked(id)
	s.pruneLocked()
	snapshot := rec.clone()
	s.mu.Unlock()

	s.logger.Warn("task failed", "task_id", id, "error", errMsg)
	s.fire(effects{notify: []Record{snapshot}, persist: true, advance: true})
}

// Cancel finalizes a task as failed with the distinguished cancellation
// marker, drops its executor registration, and signals its token. Unknown
// ids and terminal records are logged no-ops.
func (s *Store) Cancel(id string) {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("cancel for unknown task ignored", "task_id", id)
		return
	}
	if rec.Status.Terminal() {
		s.mu.Unlock()
		s.logger.Debug("cancel on terminal task ignored",
			"task_id", id, "status", rec.Status)
		return
	}
	s.removeFromQueueLocked(id)
	delete(s.executors, id)
	tok := s.tokens[id]
	rec.Status = StatusFailed
	rec.Error = cancelledMarker
	rec.EndTime = toMillis(s.opts.Clock())
	if s.current == id {
		s.current = ""
	}
	s.markFinishedLocked(id)
	s.pruneLocked()
	snapshot := rec.clone()
	s.mu.Unlock()

	if tok != nil {
		tok.Cancel()
	}
	s.logger.Info("task cancelled", "task_id", id)
	s.fire(effects{notify: []Record{snapshot}, persist: true, advance: true})
}

// Abort signals the task's cancellation token without dropping its executor
// registration or finalizing the record: the executor decides how to wind
// down and the normal completion path finalizes it.
func (s *Store) Abort(id string) {
	s.mu.Lock()
	tok := s.tokens[id]
	s.mu.Unlock()
	if tok == nil {
		s.logger.Debug("abort with no active token ignored", "task_id", id)
		return
	}
	tok.Cancel()
	s.logger.Info("task abort signalled", "task_id", id)
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// All returns copies of every record in creation order.
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.tasks[id]; ok {
			out = append(out, rec.clone())
		}
	}
	return out
}

// ByStatus returns copies of every record with the given status.
func (s *Store) ByStatus(status Status) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, id := range s.order {
		if rec, ok := s.tasks[id]; ok && rec.Status == status {
			out = append(out, rec.clone())
		}
	}
	return out
}

// ClearFinished deletes all terminal records immediately. Explicit operator
// action, as opposed to the automatic retention pruning.
func (s *Store) ClearFinished() int {
	s.mu.Lock()
	var finished []string
	for _, id := range s.order {
		if rec, ok := s.tasks[id]; ok && rec.Status.Terminal() {
			finished = append(finished, id)
		}
	}
	for _, id := range finished {
		s.deleteLocked(id)
	}
	removed := len(finished)
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info("finished tasks cleared", "count", removed)
		s.fire(effects{persist: true})
	}
	return removed
}

// Finished returns a channel closed when id reaches a terminal state.
// Already-terminal and unknown ids yield a closed channel.
func (s *Store) Finished(id string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok || rec.Status.Terminal() {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch, ok := s.finishedC[id]
	if !ok {
		ch = make(chan struct{})
		s.finishedC[id] = ch
	}
	return ch
}

// claimNext implements the dispatcher's selection step atomically: if no
// task is running, the first queued id with a registered executor is removed
// from the queue, started, and issued a cancellation token.
func (s *Store) claimNext(parent context.Context) (Record, Executor, *CancelToken, bool) {
	s.mu.Lock()
	if s.current != "" {
		s.mu.Unlock()
		return Record{}, nil, nil, false
	}
	idx := -1
	for i, id := range s.queue {
		if _, ok := s.executors[id]; ok {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return Record{}, nil, nil, false
	}
	id := s.queue[idx]
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	rec := s.tasks[id]
	rec.Status = StatusRunning
	rec.StartTime = toMillis(s.opts.Clock())
	s.current = id
	ex := s.executors[id]
	tok := newCancelToken(parent)
	s.tokens[id] = tok
	snapshot := rec.clone()
	s.mu.Unlock()

	s.logger.Info("task started", "task_id", id, "kind", snapshot.Kind)
	s.fire(effects{notify: []Record{snapshot}, persist: true})
	return snapshot, ex, tok, true
}

// release drops the runtime-only executor and token registrations for id.
// Called on the dispatcher's finally path.
func (s *Store) release(id string) {
	s.mu.Lock()
	delete(s.executors, id)
	delete(s.tokens, id)
	s.mu.Unlock()
}

// snapshot captures the persistable store state. Executors and tokens are
// runtime-only capabilities and are deliberately absent.
func (s *Store) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Tasks:   make([]Record, 0, len(s.order)),
		Queue:   append([]string(nil), s.queue...),
		SavedAt: toMillis(s.opts.Clock()),
	}
	for _, id := range s.order {
		if rec, ok := s.tasks[id]; ok {
			snap.Tasks = append(snap.Tasks, rec.clone())
		}
	}
	if s.current != "" {
		cur := s.current
		snap.CurrentTaskID = &cur
	}
	return snap
}

// restore replaces store state from a snapshot and repairs the invariant
// that cannot survive a restart: pending and running tasks lost their
// executor closures and in-flight I/O, so they are forced to failed. The
// queue and current task are always reset. Returns the repair count.
func (s *Store) restore(snap Snapshot) int {
	now := toMillis(s.opts.Clock())

	s.mu.Lock()
	s.tasks = make(map[string]*Record, len(snap.Tasks))
	s.order = s.order[:0]
	s.queue = nil
	s.current = ""
	repaired := 0
	for _, rec := range snap.Tasks {
		r := rec.clone()
		if !r.Status.Terminal() {
			r.Status = StatusFailed
			r.Error = interruptedMarker
			r.EndTime = now
			repaired++
		}
		s.tasks[r.ID] = &r
		s.order = append(s.order, r.ID)
	}
	s.mu.Unlock()
	return repaired
}

// Locked helpers. Callers hold s.mu.

func (s *Store) inQueueLocked(id string) bool {
	for _, q := range s.queue {
		if q == id {
			return true
		}
	}
	return false
}

func (s *Store) removeFromQueueLocked(id string) {
	for i, q := range s.queue {
		if q == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Store) markFinishedLocked(id string) {
	if ch, ok := s.finishedC[id]; ok {
		close(ch)
		delete(s.finishedC, id)
	}
}

func (s *Store) deleteLocked(id string) {
	s.markFinishedLocked(id)
	delete(s.tasks, id)
	delete(s.executors, id)
	delete(s.tokens, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.removeFromQueueLocked(id)
}

// pruneLocked enforces the retention policy: when terminal records exceed
// the configured cap, the oldest by end time are deleted.
func (s *Store) pruneLocked() {
	var terminal []*Record
	for _, rec := range s.tasks {
		if rec.Status.Terminal() {
			terminal = append(terminal, rec)
		}
	}
	excess := len(terminal) - s.opts.RetainFinished
	if excess <= 0 {
		return
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].EndTime < terminal[j].EndTime
	})
	for _, rec := range terminal[:excess] {
		s.logger.Debug("pruning old finished task",
			"task_id", rec.ID, "status", rec.Status)
		s.deleteLocked(rec.ID)
	}
}
