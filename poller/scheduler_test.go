package poller

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFiresOnce(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired atomic.Int64
	if !s.After("llm", 10*time.Millisecond, func() { fired.Add(1) }) {
		t.Fatalf("after returned false")
	}
	if s.Pending() != 1 {
		t.Fatalf("pending=%d, want 1", s.Pending())
	}

	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
	time.Sleep(30 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("fired=%d, want 1", fired.Load())
	}
	if s.Pending() != 0 {
		t.Fatalf("pending=%d after fire", s.Pending())
	}
}

func TestSchedulerReplacesKey(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var first, second atomic.Int64
	s.After("llm", 20*time.Millisecond, func() { first.Add(1) })
	s.After("llm", 20*time.Millisecond, func() { second.Add(1) })

	waitFor(t, time.Second, func() bool { return second.Load() == 1 })
	time.Sleep(30 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatalf("replaced callback fired")
	}
}

func TestSchedulerCancelAndStop(t *testing.T) {
	s := NewScheduler()

	var fired atomic.Int64
	s.After("a", 20*time.Millisecond, func() { fired.Add(1) })
	if !s.Cancel("a") {
		t.Fatalf("cancel should report a pending callback")
	}
	if s.Cancel("a") {
		t.Fatalf("second cancel should report nothing pending")
	}

	s.After("b", 20*time.Millisecond, func() { fired.Add(1) })
	s.Stop()
	if s.After("c", time.Millisecond, func() { fired.Add(1) }) {
		t.Fatalf("after should fail once stopped")
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("fired=%d, want 0", fired.Load())
	}
}
