package stream

import (
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("file task queue is full")
	ErrQueueClosed = errors.New("file task queue is closed")
)

// Queue puts tasks in front of a blocking pool. Submit never blocks: a task is
// either queued or refused right away. A single dispatcher goroutine hands the
// queued tasks to the pool in order.
type Queue struct {
	pool   Pool
	tasks  chan func()
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Pool = new(Queue)

func NewQueue(pool Pool, capacity int) *Queue {
	q := &Queue{
		pool:  pool,
		tasks: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
	go q.dispatch()

	return q
}

func (q *Queue) Submit(task func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of tasks waiting for a worker.
func (q *Queue) Len() int {
	return len(q.tasks)
}

func (q *Queue) dispatch() {
	defer close(q.done)

	for task := range q.tasks {
		if err := q.pool.Submit(task); err != nil {
			// the pool is gone, but file handles must still be closed
			go task()
		}
	}
}

// Close refuses new tasks and returns once every queued one was handed over to
// the pool.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	<-q.done
}
