package engine

import (
	"errors"
	"time"
)

// ErrQueueFull is returned when a unit cannot be enqueued.
var ErrQueueFull = errors.New("unit queue is full")

// Queue is a thread-safe FIFO of units backed by a buffered channel.
// It is sized at construction; since every unit in a job exists at
// most once (a unit is either queued or held by a worker), a capacity
// of the job's total unit count can never overflow on requeue.
type Queue struct {
	units chan *Unit
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{units: make(chan *Unit, capacity)}
}

// Push appends a unit to the tail.
func (q *Queue) Push(u *Unit) error {
	select {
	case q.units <- u:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pop removes the head unit, waiting up to timeout for one to become
// available. The bounded wait lets callers periodically re-check their
// shutdown flag.
func (q *Queue) Pop(timeout time.Duration) (*Unit, bool) {
	select {
	case u := <-q.units:
		return u, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Len returns the number of queued units.
func (q *Queue) Len() int {
	return len(q.units)
}
