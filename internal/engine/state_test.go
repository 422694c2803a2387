package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_ClampsInitialWorkers(t *testing.T) {
	assert.Equal(t, 2, NewState(0, 2, 8).ActiveWorkers())
	assert.Equal(t, 8, NewState(20, 2, 8).ActiveWorkers())
	assert.Equal(t, 1, NewState(0, 0, 0).ActiveWorkers())
}

func TestState_ReduceNeverBelowMin(t *testing.T) {
	s := NewState(3, 2, 8)

	n, reduced := s.ReduceWorkers()
	assert.True(t, reduced)
	assert.Equal(t, 2, n)

	n, reduced = s.ReduceWorkers()
	assert.False(t, reduced)
	assert.Equal(t, 2, n)
}

func TestState_WorkerBoundsInvariant(t *testing.T) {
	s := NewState(3, 1, 5)
	for i := 0; i < 50; i++ {
		s.ReduceWorkers()
		s.AddCompleted()
		s.ConsiderRampUp(1, 0)
		n := s.ActiveWorkers()
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 5)
	}
}

func TestState_RampUpRequiresSuccessMultiple(t *testing.T) {
	s := NewState(1, 1, 5)

	// Not a multiple of ten yet.
	for i := 0; i < 9; i++ {
		s.AddCompleted()
	}
	_, grew := s.ConsiderRampUp(10, 0)
	assert.False(t, grew)

	s.AddCompleted()
	n, grew := s.ConsiderRampUp(10, 0)
	assert.True(t, grew)
	assert.Equal(t, 2, n)
}

func TestState_RampUpBlockedDuringAndAfterRateLimit(t *testing.T) {
	s := NewState(1, 1, 5)
	for i := 0; i < 10; i++ {
		s.AddCompleted()
	}

	s.EnterRateLimit(time.Hour)
	_, grew := s.ConsiderRampUp(10, time.Minute)
	assert.False(t, grew, "no ramp-up while rate limited")

	// Cooldown long gone, but the quiet period since the event has not
	// elapsed.
	s2 := NewState(1, 1, 5)
	for i := 0; i < 10; i++ {
		s2.AddCompleted()
	}
	s2.EnterRateLimit(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.False(t, s2.CooldownActive())
	_, grew = s2.ConsiderRampUp(10, time.Minute)
	assert.False(t, grew, "no ramp-up inside the quiet period")
}

func TestState_CooldownClearsAfterDeadline(t *testing.T) {
	s := NewState(1, 1, 5)
	s.EnterRateLimit(20 * time.Millisecond)
	assert.True(t, s.CooldownActive())

	time.Sleep(30 * time.Millisecond)
	assert.False(t, s.CooldownActive())

	_, _, _, events := s.Counts()
	assert.Equal(t, 1, events)
}

func TestState_ProcessingCount(t *testing.T) {
	s := NewState(1, 1, 2)
	s.MarkProcessing()
	s.MarkProcessing()
	_, _, processing, _ := s.Counts()
	assert.Equal(t, 2, processing)

	s.DoneProcessing()
	s.DoneProcessing()
	s.DoneProcessing() // extra call must not go negative
	_, _, processing, _ = s.Counts()
	assert.Equal(t, 0, processing)
}
