// Package debounce coalesces bursts of work per key into a single call.
package debounce

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler keeps at most one pending timer per key. Scheduling a key that
// already has a pending timer replaces it; only the most recently scheduled
// function runs, once the delay has elapsed with no further calls.
type Scheduler struct {
	clock clock.Clock
	delay time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
}

type entry struct {
	seq   uint64
	timer *clock.Timer
}

// New creates a scheduler firing after delay on the given clock.
func New(clk clock.Clock, delay time.Duration) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock:   clk,
		delay:   delay,
		entries: make(map[string]*entry),
	}
}

// Delay returns the configured quiet period.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Schedule arms fn to run after the delay, cancelling any pending fn for key.
// fn runs on its own goroutine.
func (s *Scheduler) Schedule(key string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[key]; ok {
		prev.timer.Stop()
	}

	s.seq++
	seq := s.seq
	e := &entry{seq: seq}
	e.timer = s.clock.AfterFunc(s.delay, func() { s.fire(key, seq, fn) })
	s.entries[key] = e
}

// fire runs fn unless the entry was replaced or cancelled after the timer
// had already expired.
func (s *Scheduler) fire(key string, seq uint64, fn func()) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	s.mu.Unlock()

	fn()
}

// Cancel drops the pending fn for key. Reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, key)
	return true
}

// CancelAll drops every pending fn and returns how many were dropped.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	for key, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, key)
	}
	return n
}

// Pending reports whether key has a timer armed.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
