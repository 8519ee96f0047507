package executor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostRunsOnStrand(t *testing.T) {
	e := New()
	defer func() {
		e.InitiateShutdown()
		e.WaitForShutdown()
	}()

	done := make(chan bool, 1)
	e.Post(func() {
		done <- true
	})

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("post never ran")
	}
}

func TestNowDefaultsToWallClock(t *testing.T) {
	e := New()
	defer func() {
		e.InitiateShutdown()
		e.WaitForShutdown()
	}()

	before := time.Now()
	got := e.Now()
	after := time.Now()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestSetClockOverridesNow(t *testing.T) {
	e := New()
	defer func() {
		e.InitiateShutdown()
		e.WaitForShutdown()
	}()

	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return fixed })
	assert.Equal(t, fixed, e.Now())
}

func TestStartAfterFires(t *testing.T) {
	e := New()
	defer func() {
		e.InitiateShutdown()
		e.WaitForShutdown()
	}()

	fired := make(chan struct{})
	e.StartAfter(10*time.Millisecond, func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestCancelPreventsAction(t *testing.T) {
	e := New()
	defer func() {
		e.InitiateShutdown()
		e.WaitForShutdown()
	}()

	var ran atomic.Bool
	h := e.StartAfter(20*time.Millisecond, func() {
		ran.Store(true)
	})
	h.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestBlockForFromOutsideStrand(t *testing.T) {
	e := New()
	defer func() {
		e.InitiateShutdown()
		e.WaitForShutdown()
	}()

	result := ReturnBlockFor(e, func() int { return 42 })
	assert.Equal(t, 42, result)
}

func TestBlockForRunsInlineWhenAlreadyOnStrand(t *testing.T) {
	e := New()
	defer func() {
		e.InitiateShutdown()
		e.WaitForShutdown()
	}()

	result := make(chan int, 1)
	e.Post(func() {
		result <- ReturnBlockFor(e, func() int { return 7 })
	})

	select {
	case v := <-result:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("reentrant ReturnBlockFor deadlocked")
	}
}

func TestShutdownCancelsPendingTimers(t *testing.T) {
	e := New()
	var ran atomic.Bool
	e.StartAfter(time.Hour, func() {
		ran.Store(true)
	})
	e.InitiateShutdown()
	e.WaitForShutdown()
	assert.False(t, ran.Load())
}
