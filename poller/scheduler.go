package poller

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs keyed one-shot callbacks after a delay. Scheduling a key
// that is already pending replaces its timer.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]scheduled
	gen     uint64
	stopped bool
	running sync.WaitGroup
}

type scheduled struct {
	timer *time.Timer
	gen   uint64
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]scheduled)}
}

// After runs fn once after d under key. It reports false once the scheduler
// has been stopped.
func (s *Scheduler) After(key string, d time.Duration, fn func()) bool {
	if fn == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.resetLocked(key)

	s.gen++
	gen := s.gen
	s.timers[key] = scheduled{
		gen: gen,
		timer: time.AfterFunc(d, func() {
			s.fire(key, gen, fn)
		}),
	}
	return true
}

// Cancel drops a pending callback. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	s.resetLocked(key)
	return ok
}

// Pending returns how many callbacks are waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending callback and waits for running ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		for key := range s.timers {
			s.resetLocked(key)
		}
	}
	s.mu.Unlock()

	s.running.Wait()
}

func (s *Scheduler) resetLocked(key string) {
	if entry, ok := s.timers[key]; ok {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}

func (s *Scheduler) fire(key string, gen uint64, fn func()) {
	s.mu.Lock()
	entry, ok := s.timers[key]
	if s.stopped || !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	slog.Debug("scheduled callback firing", slog.String("key", key))
	fn()
}
