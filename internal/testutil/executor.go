package testutil

import (
	"sort"
	"time"
)

// ManualExecutor is a deterministic executor for tests. Execute runs the
// task inline on the calling goroutine, so publishing a signal drains it
// synchronously before the call returns. Scheduled tasks are held with
// their due offsets until Advance moves virtual time past them.
//
// Not safe for concurrent use: tests drive it from one goroutine, which
// also preserves the runtime's single-worker discipline.
type ManualExecutor struct {
	now     time.Duration // virtual elapsed time
	pending []scheduledTask
	nextID  int
}

type scheduledTask struct {
	due  time.Duration
	id   int // tie-break: schedule order
	task func()
}

// NewManualExecutor creates an executor at virtual time zero.
func NewManualExecutor() *ManualExecutor {
	return &ManualExecutor{}
}

// Execute runs task immediately on the calling goroutine.
func (e *ManualExecutor) Execute(task func()) bool {
	task()
	return true
}

// Schedule holds task until Advance has moved virtual time by at least
// delay. A zero or negative delay runs it on the next Advance(0).
func (e *ManualExecutor) Schedule(delay time.Duration, task func()) {
	if delay < 0 {
		delay = 0
	}
	e.pending = append(e.pending, scheduledTask{due: e.now + delay, id: e.nextID, task: task})
	e.nextID++
}

// Advance moves virtual time forward by d and runs every task that has
// come due, in due-time then schedule order. Tasks scheduled while
// running (e.g. a retry scheduling another retry) are honoured if they
// fall within the advanced window.
func (e *ManualExecutor) Advance(d time.Duration) {
	target := e.now + d
	for {
		idx := -1
		for i, st := range e.pending {
			if st.due > target {
				continue
			}
			if idx == -1 || st.due < e.pending[idx].due ||
				(st.due == e.pending[idx].due && st.id < e.pending[idx].id) {
				idx = i
			}
		}
		if idx == -1 {
			break
		}
		st := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		if st.due > e.now {
			e.now = st.due
		}
		st.task()
	}
	e.now = target
}

// PendingCount returns the number of scheduled tasks not yet due.
func (e *ManualExecutor) PendingCount() int {
	return len(e.pending)
}

// PendingDelays returns the remaining delays of scheduled tasks in
// ascending order. Useful for asserting what has been scheduled.
func (e *ManualExecutor) PendingDelays() []time.Duration {
	out := make([]time.Duration, 0, len(e.pending))
	for _, st := range e.pending {
		remaining := st.due - e.now
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, remaining)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
