package schedule

import (
	"container/heap"
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const idleRecheck = time.Minute

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var SystemClock Clock = systemClock{}

type Option func(*Registry)

func WithClock(clock Clock) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithManualReaping disables the background reaper; due events only fire
// through RunExpired.
func WithManualReaping() Option {
	return func(r *Registry) {
		r.manual = true
	}
}

// Registry is an ordered set of pending events serviced by a single reaper
// goroutine. The reaper starts on the first Add and lives as long as the
// process.
type Registry struct {
	mu     sync.Mutex
	events eventQueue
	seq    uint64
	wake   chan struct{}

	clock  Clock
	manual bool
	start  sync.Once

	fired metric.Int64Counter
}

func NewRegistry(options ...Option) *Registry {
	registry := &Registry{
		wake:  make(chan struct{}, 1),
		clock: SystemClock,
	}

	for _, option := range options {
		option(registry)
	}

	fired, err := otel.Meter("github.com/freekieb7/loam/schedule").Int64Counter("schedule.events.fired",
		metric.WithDescription("Timed events whose callback was run by the reaper"),
		metric.WithUnit("{event}"))
	if err != nil {
		otel.Handle(err)
	}
	registry.fired = fired

	return registry
}

func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// Add inserts the event. Adding an event that is already pending is a no-op.
func (r *Registry) Add(event *Event) {
	if !r.manual {
		r.start.Do(func() {
			slog.Debug("starting timed event reaper")
			go r.reap()
		})
	}

	r.mu.Lock()
	if event.index < 0 {
		r.seq++
		event.seq = r.seq
		heap.Push(&r.events, event)
	}
	r.mu.Unlock()

	// the new event may now be the first to expire
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Cancel removes a pending event and reports whether it was found. When the
// reaper is running the event's callback, Cancel waits for it to return and
// reports false.
func (r *Registry) Cancel(event *Event) bool {
	r.mu.Lock()
	if event.index >= 0 {
		heap.Remove(&r.events, event.index)
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()

	for event.running.Load() {
		runtime.Gosched()
	}

	return false
}

// Reschedule moves a pending event to a new deadline. It reports false, and
// leaves the event alone, when the event already fired or was cancelled.
func (r *Registry) Reschedule(event *Event, deadline time.Time) bool {
	if !r.Cancel(event) {
		return false
	}

	event.deadline = deadline
	r.Add(event)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// RunExpired fires every event whose deadline has passed on the calling
// goroutine and returns how many callbacks ran. An event is still alive at
// its deadline and fires once the clock is past it.
func (r *Registry) RunExpired() int {
	count := 0

	r.mu.Lock()
	for len(r.events) > 0 && r.expired(r.events[0]) {
		event := heap.Pop(&r.events).(*Event)
		event.running.Store(true)
		r.mu.Unlock()

		r.fire(event)
		count++

		r.mu.Lock()
		event.running.Store(false)
	}
	r.mu.Unlock()

	return count
}

func (r *Registry) expired(event *Event) bool {
	return r.clock.Now().After(event.deadline)
}

func (r *Registry) fire(event *Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("timed event callback panicked", "panic", recovered)
		}
	}()

	event.callback()
	r.fired.Add(context.Background(), 1)
}

func (r *Registry) nextTimeout() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) == 0 {
		return idleRecheck
	}

	// wake just past the deadline, when the event counts as expired
	return r.events[0].deadline.Sub(r.clock.Now()) + time.Nanosecond
}

func (r *Registry) reap() {
	timer := time.NewTimer(idleRecheck)
	defer timer.Stop()

	for {
		r.RunExpired()

		timeout := r.nextTimeout()
		if timeout < 0 {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(timeout)

		select {
		case <-timer.C:
		case <-r.wake:
		}
	}
}
