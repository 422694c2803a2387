package engine

import (
	"sync"
	"time"
)

// State is the engine's shared mutable state: worker count, rate-limit
// flag and cooldown, and progress counters. A single mutex guards
// everything; the workload is network-I/O-bound, so coarse locking is
// sufficient. Raw fields are never exposed across goroutines; all
// access goes through methods.
type State struct {
	mu sync.Mutex

	activeWorkers int
	minWorkers    int
	maxWorkers    int

	globalRateLimited      bool
	rateLimitCooldownUntil time.Time
	lastRateLimitEvent     time.Time

	completedCount      int
	failedCount         int
	processingCount     int
	rateLimitEventCount int
}

// NewState creates engine state with the given worker bounds. The
// initial count is clamped into [minWorkers, maxWorkers].
func NewState(initialWorkers, minWorkers, maxWorkers int) *State {
	if minWorkers < 1 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	if initialWorkers < minWorkers {
		initialWorkers = minWorkers
	}
	if initialWorkers > maxWorkers {
		initialWorkers = maxWorkers
	}
	return &State{
		activeWorkers: initialWorkers,
		minWorkers:    minWorkers,
		maxWorkers:    maxWorkers,
	}
}

// ActiveWorkers returns the current nominal worker count.
func (s *State) ActiveWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeWorkers
}

// MaxWorkers returns the upper worker bound.
func (s *State) MaxWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxWorkers
}

// ReduceWorkers decrements the worker count by one, never below
// minWorkers. Returns the resulting count and whether a reduction
// happened.
func (s *State) ReduceWorkers() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeWorkers > s.minWorkers {
		s.activeWorkers--
		return s.activeWorkers, true
	}
	return s.activeWorkers, false
}

// ConsiderRampUp increments the worker count by one if processing has
// been smooth: not currently rate limited, at least quietPeriod since
// the last rate-limit event, below maxWorkers, and the cumulative
// success count is a positive multiple of every. Returns the resulting
// count and whether an increase happened.
func (s *State) ConsiderRampUp(every int, quietPeriod time.Duration) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.globalRateLimited ||
		time.Since(s.lastRateLimitEvent) <= quietPeriod ||
		s.activeWorkers >= s.maxWorkers {
		return s.activeWorkers, false
	}
	if every <= 0 || s.completedCount == 0 || s.completedCount%every != 0 {
		return s.activeWorkers, false
	}
	s.activeWorkers++
	return s.activeWorkers, true
}

// EnterRateLimit records a rate-limit event and extends the global
// cooldown so that every worker pauses before pulling new work.
func (s *State) EnterRateLimit(backoff time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.globalRateLimited = true
	s.rateLimitEventCount++
	s.lastRateLimitEvent = now
	until := now.Add(backoff)
	if until.After(s.rateLimitCooldownUntil) {
		s.rateLimitCooldownUntil = until
	}
}

// CooldownActive reports whether the global rate-limit cooldown is
// still in force, clearing the flag once the cooldown has elapsed.
func (s *State) CooldownActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.globalRateLimited {
		return false
	}
	if time.Now().Before(s.rateLimitCooldownUntil) {
		return true
	}
	s.globalRateLimited = false
	return false
}

// MarkProcessing notes that a worker began processing a unit.
func (s *State) MarkProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processingCount++
}

// DoneProcessing notes that a worker finished with a unit, in any
// outcome.
func (s *State) DoneProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processingCount > 0 {
		s.processingCount--
	}
}

// AddCompleted increments the completed counter and returns the new
// cumulative count.
func (s *State) AddCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedCount++
	return s.completedCount
}

// AddFailed increments the terminal-failure counter.
func (s *State) AddFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedCount++
}

// Counts returns (completed, failed, processing, rateLimitEvents).
func (s *State) Counts() (completed, failed, processing, rateLimitEvents int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedCount, s.failedCount, s.processingCount, s.rateLimitEventCount
}
