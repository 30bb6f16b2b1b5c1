package host

import (
	"sync"

	"github.com/roach88/patchwork/internal/ir"
)

// EventType distinguishes loader events.
type EventType int

const (
	// EventSource: module source is available and about to execute.
	EventSource EventType = iota + 1
	// EventInstantiated: the module executed and produced exports.
	EventInstantiated
	// EventFailed: the module threw while executing.
	EventFailed
)

// String returns the event name used in logs.
func (t EventType) String() string {
	switch t {
	case EventSource:
		return "source"
	case EventInstantiated:
		return "instantiated"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one loader event.
type Event struct {
	Type    EventType
	Module  ir.ModuleID
	Source  string
	Exports ir.Exports
	Err     error
}

// eventQueue is a FIFO queue of loader events, safe for concurrent
// enqueueing while the Run loop dequeues.
//
// The queue is unbounded and signals through a channel so Run can wait with
// select on its context.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	// Release the slot so exports and sources can be collected.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that fires when events may be available and is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close stops further enqueues and wakes waiters. Closing twice is a no-op.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
