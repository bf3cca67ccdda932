package schedule

import (
	"sync/atomic"
	"time"
)

// Event is a one-shot callback fired by the registry's reaper at or after
// its deadline.
type Event struct {
	deadline time.Time
	callback func()
	running  atomic.Bool

	// heap bookkeeping, guarded by the owning registry's mutex
	index int
	seq   uint64
}

func NewEvent(deadline time.Time, callback func()) *Event {
	return &Event{
		deadline: deadline,
		callback: callback,
		index:    -1,
	}
}

func (e *Event) Deadline() time.Time {
	return e.deadline
}

// Running reports whether the reaper is executing the callback right now.
func (e *Event) Running() bool {
	return e.running.Load()
}

// eventQueue implements heap.Interface ordered by deadline, then insertion.
type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	event := x.(*Event)
	event.index = len(*q)
	*q = append(*q, event)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	event := old[n-1]
	old[n-1] = nil
	event.index = -1
	*q = old[:n-1]
	return event
}
