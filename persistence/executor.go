package persistence

import (
	"sync"
	"time"
)

// Executor runs tasks on a single worker and hosts the delayed-signal
// timers. At most one task executes at a time; Execute is non-blocking.
//
// The default is SerialExecutor. Tests substitute a manual executor to
// drive the drain and the timers deterministically.
type Executor interface {
	// Execute enqueues task for the worker. Returns false if the
	// executor has been closed.
	Execute(task func()) bool

	// Schedule arranges for task to be enqueued after delay.
	Schedule(delay time.Duration, task func())
}

// SerialExecutor is the default Executor: one goroutine draining an
// unbounded FIFO of tasks, with timers feeding back into the queue.
//
// The task queue is unbounded so a cascade of emitted signals can be
// offered without blocking the worker that is producing them.
type SerialExecutor struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{} // buffered, size 1; coalesces wake-ups
	done   chan struct{}
}

// NewSerialExecutor creates a SerialExecutor and starts its worker.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

// Execute enqueues task for the worker.
func (e *SerialExecutor) Execute(task func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// Schedule enqueues task after delay. A zero or negative delay enqueues
// immediately.
func (e *SerialExecutor) Schedule(delay time.Duration, task func()) {
	if delay <= 0 {
		e.Execute(task)
		return
	}
	time.AfterFunc(delay, func() {
		e.Execute(task)
	})
}

// Close stops the worker after it finishes the current task. Pending
// tasks are dropped. Timers that fire after Close are no-ops.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.done)
}

func (e *SerialExecutor) run() {
	for {
		task, ok := e.next()
		if ok {
			task()
			continue
		}
		select {
		case <-e.done:
			return
		case <-e.wake:
		}
	}
}

func (e *SerialExecutor) next() (func(), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || len(e.tasks) == 0 {
		return nil, false
	}
	task := e.tasks[0]
	// Nil out the slot so the task's captures are collectable.
	e.tasks[0] = nil
	if len(e.tasks) == 1 {
		e.tasks = e.tasks[:0]
	} else {
		e.tasks = e.tasks[1:]
	}
	return task, true
}
