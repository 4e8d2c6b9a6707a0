package domain

import "time"

// TaskStage is one schedulable unit of pipeline work for a document.
type TaskStage string

// Task stages. Each stage is independently schedulable and retryable;
// per-document ordering is enforced by the coordinator enqueuing the
// next stage only after the previous one succeeds.
const (
	TaskExtract     TaskStage = "extract"
	TaskNormalise   TaskStage = "normalise"
	TaskFingerprint TaskStage = "fingerprint"
	TaskMatch       TaskStage = "match"
	TaskIndex       TaskStage = "index"
)

// IsValid returns true if the task stage is recognised.
func (s TaskStage) IsValid() bool {
	switch s {
	case TaskExtract, TaskNormalise, TaskFingerprint, TaskMatch, TaskIndex:
		return true
	default:
		return false
	}
}

// DocumentStage returns the document stage a task of this kind runs in.
func (s TaskStage) DocumentStage() DocumentStage {
	switch s {
	case TaskExtract:
		return StageExtracting
	case TaskNormalise:
		return StageNormalising
	case TaskFingerprint:
		return StageFingerprinting
	case TaskMatch:
		return StageMatching
	case TaskIndex:
		return StageIndexed
	default:
		return StageReceived
	}
}

// TaskState is a task's delivery state in the queue.
type TaskState string

// Task states. Delivery is at-least-once: a leased task whose worker
// dies is re-delivered on recovery.
const (
	TaskPending TaskState = "pending"
	TaskLeased  TaskState = "leased"
	TaskDone    TaskState = "done"
	TaskFailed  TaskState = "failed"
)

// Task is one unit of pipeline work. Created by the coordinator,
// mutated by the queue on each attempt, terminal on success or after
// exhausting retries.
type Task struct {
	// ID is the unique, time-sortable task identifier (ULID).
	ID string

	// DocumentID is the document this task operates on.
	DocumentID string

	// Stage is the pipeline stage this task executes.
	Stage TaskStage

	// State is the delivery state.
	State TaskState

	// Attempt counts delivery attempts, starting at 0.
	Attempt int

	// MaxAttempts bounds retries before the task fails permanently.
	MaxAttempts int

	// LastError is the error from the most recent failed attempt.
	LastError string

	// EnqueuedAt is when the task was first enqueued.
	EnqueuedAt time.Time

	// NotBefore delays delivery, used for retry backoff.
	NotBefore time.Time
}

// Exhausted returns true once the retry budget is spent.
func (t *Task) Exhausted() bool {
	return t.Attempt >= t.MaxAttempts
}

// SweepResult records one maintenance sweep execution.
type SweepResult struct {
	// StartedAt is when the sweep started.
	StartedAt time.Time

	// EndedAt is when the sweep completed.
	EndedAt time.Time

	// Resubmitted counts failed documents re-queued by this sweep.
	Resubmitted int

	// Error is the sweep error message, if any.
	Error string
}
