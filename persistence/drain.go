package persistence

import (
	"log/slog"
	"sync"
	"time"
)

// signalQueue is the process-local FIFO of numbered signals awaiting the
// apply engine. Multi-producer (publishers, timers), single-consumer
// (the drain task). A failed signal stays at the head so the retry
// re-attempts it before anything newer.
type signalQueue struct {
	mu      sync.Mutex
	signals []*numberedSignal
}

// offer appends sig to the back of the queue.
func (q *signalQueue) offer(sig *numberedSignal) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.signals = append(q.signals, sig)
}

// peek returns the head without removing it, or nil when empty.
func (q *signalQueue) peek() *numberedSignal {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.signals) == 0 {
		return nil
	}
	return q.signals[0]
}

// poll removes the head.
func (q *signalQueue) poll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.signals) == 0 {
		return
	}
	// Nil out the slot so the signal is collectable.
	q.signals[0] = nil
	if len(q.signals) == 1 {
		q.signals = q.signals[:0]
	} else {
		q.signals = q.signals[1:]
	}
}

// len returns the current queue length.
func (q *signalQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.signals)
}

// offer places a numbered signal on the in-memory queue and triggers a
// drain. Non-blocking; safe from any goroutine.
func (p *Persistence) offer(sig *numberedSignal) {
	p.queue.offer(sig)
	p.drain()
}

// schedule arranges for a delayed numbered signal to be offered at its
// fire-at time (immediately when the fire-at has passed).
func (p *Persistence) schedule(sig *numberedSignal) {
	delay := time.Duration(sig.signal.FireAt-p.clock.Now()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	p.executor.Schedule(delay, func() {
		p.offer(sig)
	})
}

// drain starts a drain task unless one is already running. The atomic
// work-indicator counter guarantees that a publish concurrent with a
// running drain is not lost: only the transition from zero schedules a
// task, and the task keeps looping until it observes the counter back at
// zero.
func (p *Persistence) drain() {
	if p.wip.Add(1) == 1 {
		p.executor.Execute(p.drainLoop)
	}
}

// drainLoop processes queued signals head-first until the queue is
// empty. On an apply failure the failed signal stays at the head, the
// loop stops, and a retry drain is scheduled; work enqueued in the
// meantime is picked up by the retry.
func (p *Persistence) drainLoop() {
	missed := int64(1)
	for {
		for {
			sig := p.queue.peek()
			if sig == nil {
				break
			}
			if !p.process(sig) {
				break
			}
			p.queue.poll()
		}
		missed = p.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

// scheduleRetry arranges for the drain to resume after the retry
// policy's next interval. A stopped policy disables retries.
func (p *Persistence) scheduleRetry() {
	delay := p.retry.NextBackOff()
	if delay < 0 {
		slog.Warn("retry policy exhausted; drain suspended until next publish")
		return
	}
	slog.Info("apply failed; retry scheduled", "delay", delay)
	p.executor.Schedule(delay, p.drain)
}
