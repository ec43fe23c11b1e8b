package task

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of work a task performs.
type Kind string

// Supported task kinds.
const (
	KindExtract Kind = "extract"
	KindAnalyze Kind = "analyze"
)

// Valid reports whether k is a known task kind.
func (k Kind) Valid() bool {
	return k == KindExtract || k == KindAnalyze
}

// Status represents the current state of a task.
type Status string

// Possible task status values. Completed and failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final. Terminal records are never
// reopened; mutations against them degrade to logged no-ops.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DetailedProgress carries a stage-level progress report alongside the
// normalized percent. ETASeconds is -1 when no estimate is available.
type DetailedProgress struct {
	Stage        string `json:"stage"`
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	ETASeconds   int    `json:"estimatedTimeRemainingSeconds"`
	StageMessage string `json:"stageMessage,omitempty"`
}

// Record is a unit of extraction or analysis work tracked through
// pending -> running -> {completed | failed}.
//
// Timestamps are wall-clock milliseconds since the Unix epoch, matching the
// persisted snapshot format. EndTime is zero until a terminal transition.
type Record struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Status     Status            `json:"status"`
	URL        string            `json:"url"`
	Platform   string            `json:"platform"`
	MaxItems   int               `json:"maxItems,omitempty"`
	Progress   int               `json:"progress"`
	StartTime  int64             `json:"startTime"`
	EndTime    int64             `json:"endTime,omitempty"`
	TokensUsed int               `json:"tokensUsed"`
	Error      string            `json:"error,omitempty"`
	Message    string            `json:"message,omitempty"`
	Detailed   *DetailedProgress `json:"detailedProgress,omitempty"`
}

// Cancelled reports whether the record failed because of an explicit
// cancellation rather than an executor error. Callers use this to tell the
// two apart in polling UIs.
func (r Record) Cancelled() bool {
	return r.Status == StatusFailed && r.Error == cancelledMarker
}

// Interrupted reports whether the record was failed by crash recovery because
// the process restarted while the task was pending or running.
func (r Record) Interrupted() bool {
	return r.Status == StatusFailed && r.Error == interruptedMarker
}

// clone returns a copy safe to hand outside the store. DetailedProgress is
// duplicated so callers cannot mutate the stored report.
func (r *Record) clone() Record {
	out := *r
	if r.Detailed != nil {
		d := *r.Detailed
		out.Detailed = &d
	}
	return out
}

// Result is what an executor produces on success.
type Result struct {
	TokensUsed int
	ItemCount  int
}

// Snapshot is the serialized store state written for crash recovery.
// The field names are part of the on-disk format and must not change.
type Snapshot struct {
	Tasks         []Record `json:"tasks"`
	Queue         []string `json:"queue"`
	CurrentTaskID *string  `json:"currentTaskId"`
	SavedAt       int64    `json:"savedAt"`
}

func newTaskID() string {
	return uuid.New().String()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}
