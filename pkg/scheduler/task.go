// Package scheduler implements the task scheduler (C5): per-queue priority
// dispatch over a bounded worker pool, with cooperative cancellation and
// per-task timeout.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// TaskType is the queue a task is dispatched through. Downloads and
// inference always use distinct queues so IO never blocks inference.
type TaskType string

const (
	TypeLLM       TaskType = "llm"
	TypeOCR       TaskType = "ocr"
	TypeSTT       TaskType = "stt"
	TypeTTS       TaskType = "tts"
	TypeEmbedding TaskType = "embedding"
	TypeDownload  TaskType = "download"
	TypeVerify    TaskType = "verify"
)

// ResourceType is advisory metadata for queue assignment and reporting; it
// is not a scheduling key by itself.
type ResourceType string

const (
	ResourceCPUBound ResourceType = "cpuBound"
	ResourceGPUBound ResourceType = "gpuBound"
	ResourceIOBound  ResourceType = "ioBound"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether s is one of the four terminal statuses.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

// Thunk is the unit of work a Task performs. It must observe ctx
// cancellation at its suspension points; the scheduler makes no assumption
// about synchronous completion.
type Thunk func(ctx context.Context) (any, error)

// Task is a unit of schedulable work. It is created by its submitter and
// then uniquely owned by the scheduler from submission until it reaches a
// terminal status; callers hold only the Task's id thereafter, never the
// Task itself.
type Task struct {
	ID           string
	Type         TaskType
	Priority     int
	ResourceType ResourceType
	Execute      Thunk
	Timeout      time.Duration
	Cancellable  bool

	submittedAt time.Time

	mu     sync.Mutex
	status Status
	result any
	err    error

	cancel context.CancelFunc
}

// Status returns the task's current lifecycle status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the task's result and error, valid only once Status() is
// StatusCompleted or StatusFailed.
func (t *Task) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// cancelFunc returns the cancellation signal recorded by tryStart, or nil if
// the task never reached StatusRunning.
func (t *Task) cancelFunc() context.CancelFunc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel
}

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

// tryStart transitions a still-pending task to running and records cancel
// as its cancellation signal, failing if a concurrent Cancel has already
// moved it to a terminal status first. This is the only path into
// StatusRunning, so it closes the race where a task is cancelled while
// pending and then dispatched anyway: whichever of tryStart/finish reaches
// the lock first wins, and the loser observes the terminal status already
// set.
func (t *Task) tryStart(cancel context.CancelFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return false
	}
	t.cancel = cancel
	t.status = StatusRunning
	return true
}

// finish transitions t to a terminal status, but only if it isn't already
// terminal. It reports whether the transition happened, so callers can gate
// stats increments and event emission on winning the race to finish first —
// the first terminal transition wins and no task ever reports two.
func (t *Task) finish(s Status, result any, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return false
	}
	t.status = s
	t.result = result
	t.err = err
	return true
}
