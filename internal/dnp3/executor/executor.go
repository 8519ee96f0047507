// Package executor implements the single logical thread of execution (a
// "strand") that the outstation context runs its protocol state machines
// on, atop an ordinary multi-threaded Go runtime.
package executor

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// Action is a unit of work run on the strand.
type Action func()

// Executor serializes Action execution onto a single goroutine while
// accepting posts and timer schedules from any goroutine.
type Executor struct {
	mailbox chan Action
	timers  *timerQueue
	clock   func() time.Time

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	doneCh       chan struct{}

	strandGoroutine atomic.Uint64 // goroutine id of the running strand; 0 before start
}

// New starts an Executor's background goroutine and returns it running.
func New() *Executor {
	e := &Executor{
		mailbox:    make(chan Action, 256),
		timers:     newTimerQueue(),
		clock:      time.Now,
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go e.run()
	return e
}

// Now returns the strand's current time. Every timeout and timestamp
// decision in the outstation context goes through this rather than calling
// time.Now() directly, so tests can swap in a deterministic clock with
// SetClock instead of sleeping on the wall clock.
func (e *Executor) Now() time.Time {
	return e.clock()
}

// SetClock overrides the clock Now()/StartAfter use. Intended for tests;
// must be called before the strand is otherwise relied upon for timing.
func (e *Executor) SetClock(clock func() time.Time) {
	e.clock = clock
}

// Post enqueues action to run on the strand. It never blocks the caller
// beyond the mailbox being momentarily full.
func (e *Executor) Post(action Action) {
	e.mailbox <- action
}

// TimerHandle lets a caller cancel a scheduled Action.
type TimerHandle struct {
	timer *Timer
	e     *Executor
}

// Cancel is idempotent and may be called from any goroutine, including the
// strand itself. A cancelled timer's action is guaranteed never to run.
func (h *TimerHandle) Cancel() {
	e, t := h.e, h.timer
	cancel := func() {
		if t.heapIndex < 0 || t.heapIndex >= e.timers.Len() || e.timers.active[t.heapIndex] != t {
			t.cancelled = true // already fired, or its push is still queued
			return
		}
		heap.Remove(e.timers, t.heapIndex)
		e.timers.release(t)
	}
	if e.isOnStrand() {
		cancel()
		return
	}
	e.Post(cancel)
}

// StartAfter schedules action to run on the strand after d elapses.
func (e *Executor) StartAfter(d time.Duration, action Action) *TimerHandle {
	return e.StartAt(e.Now().Add(d), action)
}

// StartAt schedules action to run on the strand at the given wall time.
func (e *Executor) StartAt(at time.Time, action Action) *TimerHandle {
	t := e.timers.acquire()
	t.expiry = at
	t.action = action
	t.cancelled = false
	handle := &TimerHandle{timer: t, e: e}
	e.Post(func() {
		heap.Push(e.timers, t)
	})
	return handle
}

// BlockFor runs action synchronously. If the caller is already executing on
// the strand it runs inline; otherwise it posts to the strand and blocks
// the caller (never the strand) on a one-shot synchronizer until the
// posted action completes.
func (e *Executor) BlockFor(action Action) {
	if e.isOnStrand() {
		action()
		return
	}
	done := make(chan struct{})
	e.Post(func() {
		action()
		close(done)
	})
	<-done
}

// ReturnBlockFor is BlockFor's generic counterpart: it runs fn synchronously
// and returns its result. Must never be called from the strand in the
// cross-thread branch; calling it from the strand executes fn inline
// instead, which is always safe since the strand cannot deadlock itself.
func ReturnBlockFor[T any](e *Executor, fn func() T) T {
	if e.isOnStrand() {
		return fn()
	}
	done := make(chan struct{})
	var result T
	e.Post(func() {
		result = fn()
		close(done)
	})
	<-done
	return result
}

// InitiateShutdown marks the strand for shutdown, cancelling idle timers.
// Active (already firing) timers are allowed to complete.
func (e *Executor) InitiateShutdown() {
	e.shutdownOnce.Do(func() {
		close(e.shutdownCh)
	})
}

// WaitForShutdown blocks until the strand goroutine has exited.
func (e *Executor) WaitForShutdown() {
	<-e.doneCh
}

func (e *Executor) run() {
	defer close(e.doneCh)
	var wake <-chan time.Time
	var wakeTimer *time.Timer

	rearm := func() {
		if wakeTimer != nil {
			wakeTimer.Stop()
			wakeTimer = nil
		}
		if e.timers.Len() == 0 {
			wake = nil
			return
		}
		d := time.Until(e.timers.peek().expiry)
		if d < 0 {
			d = 0
		}
		wakeTimer = time.NewTimer(d)
		wake = wakeTimer.C
	}

	e.markStrand()
	defer e.unmarkStrand()

	shuttingDown := e.shutdownCh
	rearm()
	for {
		select {
		case action, ok := <-e.mailbox:
			if !ok {
				return
			}
			action()
			rearm()
		case <-wake:
			e.fireExpired()
			rearm()
		case <-shuttingDown:
			// Idle (not currently firing) timers are cancelled outright;
			// the strand has nothing left to wait for once the heap drains.
			for e.timers.Len() > 0 {
				t := heap.Pop(e.timers).(*Timer)
				e.timers.release(t)
			}
			shuttingDown = nil
			return
		}
	}
}

func (e *Executor) fireExpired() {
	now := e.Now()
	for e.timers.Len() > 0 && !e.timers.peek().expiry.After(now) {
		t := heap.Pop(e.timers).(*Timer)
		if !t.cancelled {
			action := t.action
			e.timers.release(t)
			action()
		} else {
			e.timers.release(t)
		}
	}
}

// isOnStrand reports whether the calling goroutine is the strand's own
// goroutine, so BlockFor/ReturnBlockFor can run inline instead of posting
// (which would otherwise deadlock against itself).
func (e *Executor) isOnStrand() bool {
	return goroutineID() == e.strandGoroutine.Load()
}

func (e *Executor) markStrand() {
	e.strandGoroutine.Store(goroutineID())
}

func (e *Executor) unmarkStrand() {
	e.strandGoroutine.Store(0)
}
