package schedule_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/freekieb7/loam/schedule"
	"github.com/freekieb7/loam/test"
)

func TestRunExpiredFiresInDeadlineOrder(t *testing.T) {
	clock := test.NewClock()
	registry := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())

	var order []int
	for _, offset := range []int{3, 1, 2} {
		offset := offset
		registry.Add(schedule.NewEvent(clock.Now().Add(time.Duration(offset)*time.Minute), func() {
			order = append(order, offset)
		}))
	}

	if fired := registry.RunExpired(); fired != 0 {
		t.Fatalf("expected nothing to fire yet, fired %d", fired)
	}

	clock.Advance(2*time.Minute + time.Second)
	if fired := registry.RunExpired(); fired != 2 {
		t.Fatalf("expected 2 events to fire, fired %d", fired)
	}

	clock.Advance(time.Hour)
	registry.RunExpired()

	test.AssertEqual(t, []int{1, 2, 3}, order)
	test.AssertEqual(t, 0, registry.Len())
}

func TestEqualDeadlinesFireInInsertionOrder(t *testing.T) {
	clock := test.NewClock()
	registry := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())

	deadline := clock.Now().Add(time.Second)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		registry.Add(schedule.NewEvent(deadline, func() { order = append(order, name) }))
	}

	clock.Advance(2 * time.Second)
	registry.RunExpired()

	test.AssertEqual(t, []string{"a", "b", "c"}, order)
}

func TestEventAliveAtItsDeadline(t *testing.T) {
	clock := test.NewClock()
	registry := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())

	called := false
	registry.Add(schedule.NewEvent(clock.Now().Add(time.Hour), func() { called = true }))

	clock.Advance(time.Hour)
	test.AssertEqual(t, 0, registry.RunExpired())
	test.AssertTrue(t, !called, "event fired at its deadline")

	clock.Advance(time.Nanosecond)
	test.AssertEqual(t, 1, registry.RunExpired())
	test.AssertTrue(t, called, "event should fire once past its deadline")
}

func TestRescheduledEventAliveAtNewDeadline(t *testing.T) {
	clock := test.NewClock()
	registry := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())

	event := schedule.NewEvent(clock.Now().Add(time.Hour), func() {})
	registry.Add(event)

	clock.Advance(59 * time.Minute)
	registry.RunExpired()
	test.AssertTrue(t, registry.Reschedule(event, clock.Now().Add(time.Hour)), "reschedule at 59 minutes")

	clock.Advance(60 * time.Minute)
	test.AssertEqual(t, 0, registry.RunExpired())
	test.AssertTrue(t, registry.Reschedule(event, clock.Now().Add(time.Hour)), "reschedule at 119 minutes")
}

func TestAddTwiceKeepsSingleEntry(t *testing.T) {
	clock := test.NewClock()
	registry := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())

	event := schedule.NewEvent(clock.Now().Add(time.Second), func() {})
	registry.Add(event)
	registry.Add(event)

	test.AssertEqual(t, 1, registry.Len())
}

func TestCancel(t *testing.T) {
	clock := test.NewClock()
	registry := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())

	called := false
	event := schedule.NewEvent(clock.Now().Add(time.Second), func() { called = true })
	registry.Add(event)

	if !registry.Cancel(event) {
		t.Fatal("expected pending event to be cancelled")
	}
	if registry.Cancel(event) {
		t.Fatal("expected second cancel to report false")
	}

	clock.Advance(time.Minute)
	registry.RunExpired()

	if called {
		t.Error("cancelled event must not fire")
	}
}

func TestCancelAfterFireReportsFalse(t *testing.T) {
	clock := test.NewClock()
	registry := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())

	event := schedule.NewEvent(clock.Now(), func() {})
	registry.Add(event)
	clock.Advance(time.Millisecond)
	registry.RunExpired()

	if registry.Cancel(event) {
		t.Error("fired event must not be reported as cancelled")
	}
}

func TestReschedule(t *testing.T) {
	clock := test.NewClock()
	registry := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())

	var calls int
	event := schedule.NewEvent(clock.Now().Add(time.Hour), func() { calls++ })
	registry.Add(event)

	clock.Advance(59 * time.Minute)
	if !registry.Reschedule(event, clock.Now().Add(time.Hour)) {
		t.Fatal("expected reschedule of pending event to succeed")
	}

	clock.Advance(2 * time.Minute)
	registry.RunExpired()
	test.AssertEqual(t, 0, calls)

	clock.Advance(time.Hour)
	registry.RunExpired()
	test.AssertEqual(t, 1, calls)

	if registry.Reschedule(event, clock.Now().Add(time.Hour)) {
		t.Error("reschedule of a fired event must fail")
	}
}

func TestPanickingCallbackDoesNotStopReaping(t *testing.T) {
	clock := test.NewClock()
	registry := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())

	called := false
	registry.Add(schedule.NewEvent(clock.Now(), func() { panic("boom") }))
	registry.Add(schedule.NewEvent(clock.Now(), func() { called = true }))
	clock.Advance(time.Millisecond)

	test.AssertEqual(t, 2, registry.RunExpired())
	test.AssertTrue(t, called, "second callback should run")
}

func TestReaperFiresEvent(t *testing.T) {
	registry := schedule.NewRegistry()

	done := make(chan struct{})
	registry.Add(schedule.NewEvent(time.Now().Add(20*time.Millisecond), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not fire the event")
	}
}

func TestReaperWokenByEarlierInsert(t *testing.T) {
	registry := schedule.NewRegistry()

	// Parks the reaper on a far deadline first.
	registry.Add(schedule.NewEvent(time.Now().Add(time.Hour), func() {}))

	done := make(chan struct{})
	registry.Add(schedule.NewEvent(time.Now().Add(10*time.Millisecond), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reaper was not woken by the earlier event")
	}

	test.AssertEqual(t, 1, registry.Len())
}

func TestCancelWaitsForRunningCallback(t *testing.T) {
	registry := schedule.NewRegistry()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	event := schedule.NewEvent(time.Now(), func() {
		close(started)
		<-release
		finished.Store(true)
	})
	registry.Add(event)

	<-started

	var wg sync.WaitGroup
	wg.Add(1)
	var cancelled bool
	go func() {
		defer wg.Done()
		cancelled = registry.Cancel(event)
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	test.AssertTrue(t, finished.Load(), "cancel returned before the callback finished")
	test.AssertTrue(t, !cancelled, "a fired event must not be reported as cancelled")
}
