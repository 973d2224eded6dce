package scheduler

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelrt/corerun/pkg/modelerror"
)

var tracer = otel.Tracer("github.com/modelrt/corerun/pkg/scheduler")

// taskTypeOrder fixes the order type queues are polled in a dispatch pass.
// It has no effect on priority within a type; it only determines which
// type's slot is claimed first when several types have free global capacity
// in the same pass.
var taskTypeOrder = []TaskType{
	TypeDownload, TypeVerify, TypeLLM, TypeEmbedding, TypeOCR, TypeSTT, TypeTTS,
}

// Stats are read-consistent snapshots of the scheduler's lifetime counters.
type Stats struct {
	TotalSubmitted int64
	TotalCompleted int64
	TotalFailed    int64
	TotalCancelled int64
	TotalTimeout   int64
}

type statsCounters struct {
	submitted, completed, failed, cancelled, timeout atomic.Int64
}

func (c *statsCounters) snapshot() Stats {
	return Stats{
		TotalSubmitted: c.submitted.Load(),
		TotalCompleted: c.completed.Load(),
		TotalFailed:    c.failed.Load(),
		TotalCancelled: c.cancelled.Load(),
		TotalTimeout:   c.timeout.Load(),
	}
}

// Scheduler owns dispatch for every submitted Task: a single worker pool of
// size maxTotalConcurrent, gated additionally by a per-task-type queue cap
// that bounds how many tasks of each type run at once.
type Scheduler struct {
	queues map[TaskType]*typeQueue
	sem    chan struct{}
	events *broadcaster
	stats  statsCounters

	mu     sync.Mutex
	tasks  map[string]*Task
	seq    uint64
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config configures a Scheduler. Zero-value QueueCaps falls back to
// DefaultQueueCaps(); zero MaxTotalConcurrent falls back to 4.
type Config struct {
	MaxTotalConcurrent int
	QueueCaps          map[TaskType]int
}

// New constructs a Scheduler and starts its dispatch loop. Call Close to
// stop it.
func New(cfg Config) *Scheduler {
	if cfg.MaxTotalConcurrent <= 0 {
		cfg.MaxTotalConcurrent = 4
	}
	caps := cfg.QueueCaps
	if caps == nil {
		caps = DefaultQueueCaps()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		queues: make(map[TaskType]*typeQueue, len(caps)),
		sem:    make(chan struct{}, cfg.MaxTotalConcurrent),
		events: newBroadcaster(),
		tasks:  make(map[string]*Task),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	for tt, n := range caps {
		s.queues[tt] = newTypeQueue(n)
	}

	s.wg.Add(1)
	go s.dispatchLoop()
	return s
}

// Subscribe returns a channel of every future TaskEvent this scheduler emits.
func (s *Scheduler) Subscribe() (<-chan TaskEvent, func()) {
	return s.events.Subscribe()
}

// Stats returns a read-consistent snapshot of lifetime counters.
func (s *Scheduler) Stats() Stats {
	return s.stats.snapshot()
}

// Submit enqueues task, returning immediately. The task stays pending until
// both the global concurrency limit and its type's queue cap admit it.
func (s *Scheduler) Submit(task *Task) {
	task.setStatus(StatusPending)
	task.submittedAt = time.Now()

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.tasks[task.ID] = task
	s.mu.Unlock()

	q, ok := s.queues[task.Type]
	if !ok {
		// Unknown type: treat as its own uncapped queue lazily, rather than
		// silently dropping the submission.
		s.mu.Lock()
		q = newTypeQueue(1 << 30)
		s.queues[task.Type] = q
		s.mu.Unlock()
	}

	s.stats.submitted.Add(1)
	s.events.publish(TaskEvent{Type: EventSubmitted, TaskID: task.ID, Timestamp: time.Now()})

	q.push(queuedTask{task: task, seq: seq})
	s.nudge()
}

// Cancel requests cancellation of taskId. A pending task is cancelled
// immediately and never runs. A running, cancellable task is signalled and
// reaches its cancelled terminal status asynchronously. A running,
// non-cancellable task refuses and Cancel returns false.
func (s *Scheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	// The pending check and the transition happen under the task's own
	// lock, the same lock tryStart takes, so this either wins the race
	// against dispatch (task was still pending, never runs) or loses it
	// cleanly (task is already running or already terminal) with no window
	// for both to succeed.
	task.mu.Lock()
	wasPending := task.status == StatusPending
	if wasPending {
		task.status = StatusCancelled
	}
	task.mu.Unlock()
	if wasPending {
		s.stats.cancelled.Add(1)
		s.events.publish(TaskEvent{Type: EventCancelled, TaskID: task.ID, Timestamp: time.Now()})
		return true
	}

	switch task.Status() {
	case StatusRunning:
		if !task.Cancellable {
			return false
		}
		if cancel := task.cancelFunc(); cancel != nil {
			cancel()
		}
		return true
	default:
		return false
	}
}

func (s *Scheduler) nudge() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// Close stops the dispatch loop. In-flight tasks continue running to
// completion; no new tasks are admitted afterward.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wakeup:
			s.tryDispatch()
		}
	}
}

func (s *Scheduler) tryDispatch() {
	for {
		admittedAny := false
		s.mu.Lock()
		queues := make([]*typeQueue, 0, len(s.queues))
		for _, tt := range taskTypeOrder {
			if q, ok := s.queues[tt]; ok {
				queues = append(queues, q)
			}
		}
		for tt, q := range s.queues {
			if !slices.Contains(taskTypeOrder, tt) {
				queues = append(queues, q)
			}
		}
		s.mu.Unlock()
		for _, q := range queues {
			select {
			case s.sem <- struct{}{}:
			default:
				return
			}

			qt, ok := q.popIfAdmitted()
			if !ok {
				<-s.sem
				continue
			}

			if qt.task.Status() == StatusCancelled {
				// Cancelled while still pending; never runs.
				q.release()
				<-s.sem
				admittedAny = true
				continue
			}

			admittedAny = true
			s.run(qt.task, q)
		}
		if !admittedAny {
			return
		}
	}
}

func (s *Scheduler) run(task *Task, q *typeQueue) {
	ctx, cancel := context.WithCancel(context.Background())
	if !task.tryStart(cancel) {
		// Lost the race to a concurrent Cancel that finished the task while
		// it was still pending; it must never run.
		cancel()
		q.release()
		<-s.sem
		s.nudge()
		return
	}
	s.events.publish(TaskEvent{Type: EventStarted, TaskID: task.ID, Timestamp: time.Now()})

	ctx, span := tracer.Start(ctx, "scheduler.task",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.type", string(task.Type)),
			attribute.Int("task.priority", task.Priority),
		),
	)

	var timer *time.Timer
	timedOut := make(chan struct{})
	if task.Timeout > 0 {
		timer = time.AfterFunc(task.Timeout, func() {
			close(timedOut)
			cancel()
		})
	}

	go func() {
		defer func() {
			if timer != nil {
				timer.Stop()
			}
			cancel()
			span.End()
			q.release()
			<-s.sem
			s.nudge()
		}()

		result, err := task.Execute(ctx)

		// Each branch's finish() call is the single authoritative terminal
		// transition for this task; if it reports false, a concurrent
		// Cancel already finished the task first (e.g. a non-cancellable
		// guard was bypassed by a race, or cancel() fired between Execute
		// returning and this check), so stats and events for this branch
		// must not be emitted on top of whatever already fired.
		select {
		case <-timedOut:
			timeoutErr := modelerror.New(modelerror.TaskTimeout, "task exceeded its timeout")
			if !task.finish(StatusTimeout, nil, timeoutErr) {
				return
			}
			s.stats.timeout.Add(1)
			span.SetStatus(codes.Error, timeoutErr.Error())
			s.events.publish(TaskEvent{Type: EventTimeout, TaskID: task.ID, Timestamp: time.Now()})
			return
		default:
		}

		if ctx.Err() != nil {
			if !task.finish(StatusCancelled, nil, modelerror.New(modelerror.TaskCancelled, "task was cancelled")) {
				return
			}
			s.stats.cancelled.Add(1)
			span.SetStatus(codes.Error, "cancelled")
			s.events.publish(TaskEvent{Type: EventCancelled, TaskID: task.ID, Timestamp: time.Now()})
			return
		}

		if err != nil {
			if !task.finish(StatusFailed, nil, err) {
				return
			}
			s.stats.failed.Add(1)
			span.SetStatus(codes.Error, err.Error())
			s.events.publish(TaskEvent{Type: EventFailed, TaskID: task.ID, Timestamp: time.Now(), Error: err})
			return
		}

		if !task.finish(StatusCompleted, result, nil) {
			return
		}
		s.stats.completed.Add(1)
		span.SetStatus(codes.Ok, "")
		s.events.publish(TaskEvent{Type: EventCompleted, TaskID: task.ID, Timestamp: time.Now()})
	}()
}
