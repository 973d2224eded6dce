package scheduler

import (
	"sync"

	"github.com/emirpasic/gods/v2/trees/binaryheap"
)

// queuedTask wraps a Task with a monotonic submission sequence, so ties in
// priority break FIFO by submission order.
type queuedTask struct {
	task *Task
	seq  uint64
}

// typeQueue is a single task-type's priority queue: descending priority,
// FIFO among equal priorities. Backed by gods' binary heap, generalized from
// an unbounded slice-based queue to give O(log n) push/pop under contention
// from many concurrent submitters.
type typeQueue struct {
	mu   sync.Mutex
	heap *binaryheap.Heap[queuedTask]
	cap  int
	// running counts tasks of this type currently executing.
	running int
}

func newTypeQueue(capacity int) *typeQueue {
	return &typeQueue{
		cap: capacity,
		heap: binaryheap.NewWith[queuedTask](func(a, b queuedTask) int {
			if a.task.Priority != b.task.Priority {
				// Higher priority pops first: invert the natural ordering.
				if a.task.Priority > b.task.Priority {
					return -1
				}
				return 1
			}
			if a.seq < b.seq {
				return -1
			}
			if a.seq > b.seq {
				return 1
			}
			return 0
		}),
	}
}

func (q *typeQueue) push(qt queuedTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heap.Push(qt)
}

// popIfAdmitted pops and returns the highest-priority task if this queue's
// per-type concurrency cap still has room, incrementing running. Returns
// false if the cap is full or the queue is empty.
func (q *typeQueue) popIfAdmitted() (queuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running >= q.cap {
		return queuedTask{}, false
	}
	qt, ok := q.heap.Pop()
	if !ok {
		return queuedTask{}, false
	}
	q.running++
	return qt, true
}

func (q *typeQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running--
}

func (q *typeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Size()
}

// DefaultQueueCaps are the per-task-type concurrency caps from §4.3.
func DefaultQueueCaps() map[TaskType]int {
	return map[TaskType]int{
		TypeLLM:       1,
		TypeOCR:       2,
		TypeSTT:       2,
		TypeTTS:       1,
		TypeEmbedding: 2,
		TypeDownload:  3,
		TypeVerify:    2,
	}
}
