package engine

import "time"

// UnitStatus is the per-unit state machine position.
type UnitStatus string

// Unit lifecycle: Pending → Processing → {Completed | retry→Pending |
// RateLimited→retry→Pending | Failed}. Completed and Failed are
// terminal.
const (
	UnitPending     UnitStatus = "pending"
	UnitProcessing  UnitStatus = "processing"
	UnitCompleted   UnitStatus = "completed"
	UnitFailed      UnitStatus = "failed"
	UnitRateLimited UnitStatus = "rate_limited"
)

// Unit is one chunk of source text queued for processing. It is owned
// exclusively by the dispatch engine for its lifetime; Index is
// immutable and globally unique within a job.
type Unit struct {
	Index   int
	Content string

	Status         UnitStatus
	Result         string
	RetryCount     int
	LastError      string
	NextEligibleAt time.Time
	Backoff        time.Duration
}

// NewUnit creates a pending unit.
func NewUnit(index int, content string) *Unit {
	return &Unit{Index: index, Content: content, Status: UnitPending}
}
