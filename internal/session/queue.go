package session

import (
	"log/slog"
	"sync"
	"time"
)

// taskQueue serializes inbound message handling: tasks run strictly one at
// a time in arrival order, with a short yield between drains so a burst of
// remote operations cannot interleave two partially-applied mutations. A
// task that panics is logged and does not stop the queue.
type taskQueue struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	yield   time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
}

func newTaskQueue(yield time.Duration, logger *slog.Logger) *taskQueue {
	q := &taskQueue{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		yield:   yield,
		logger:  logger.With("component", "queue"),
	}
	go q.drain()
	return q
}

// Enqueue appends task to the FIFO. Safe for concurrent use; a nil task and
// enqueues after Close are ignored.
func (q *taskQueue) Enqueue(task func()) {
	if task == nil {
		return
	}
	select {
	case <-q.done:
		return
	default:
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *taskQueue) drain() {
	defer close(q.stopped)
	for {
		task := q.pop()
		if task == nil {
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}

		q.run(task)

		if q.yield > 0 {
			select {
			case <-time.After(q.yield):
			case <-q.done:
				return
			}
		}
	}
}

func (q *taskQueue) pop() func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task
}

func (q *taskQueue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued task panicked", "panic", r)
		}
	}()
	task()
}

// Close stops the drain loop and waits for the in-flight task, if any, to
// finish. Pending tasks are discarded.
func (q *taskQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	<-q.stopped
}
