package dom

import (
	"sync"
	"time"
)

// TimerScheduler runs deferred work on timers.
type TimerScheduler struct{}

// Defer runs fn on its own goroutine as soon as possible.
func (TimerScheduler) Defer(fn func()) func() {
	return TimerScheduler{}.After(0, fn)
}

// After runs fn once d has elapsed.
func (TimerScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

type task struct {
	fn        func()
	delay     time.Duration
	cancelled bool
}

// ManualScheduler queues deferred work until Flush. Delays are recorded
// but not waited for.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []*task
}

// NewManualScheduler creates an empty scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Defer(fn func()) func() {
	return s.After(0, fn)
}

func (s *ManualScheduler) After(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &task{fn: fn, delay: d}
	s.queue = append(s.queue, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

// Pending returns the number of queued tasks that were not cancelled.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.queue {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Flush runs queued tasks in order until the queue is empty, including
// tasks queued while flushing. It returns the number of tasks run.
func (s *ManualScheduler) Flush() int {
	ran := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return ran
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		cancelled := t.cancelled
		s.mu.Unlock()

		if !cancelled {
			t.fn()
			ran++
		}
	}
}
