package engine

import "log/slog"

// Snapshot is a point-in-time view of job progress delivered to the
// progress sink.
type Snapshot struct {
	Total            int
	Completed        int
	Failed           int
	Pending          int
	Processing       int
	RateLimitedCount int
}

// ProgressReporter receives periodic progress snapshots. The engine has
// no opinion on where they go.
type ProgressReporter interface {
	Report(s Snapshot)
}

// NopReporter discards snapshots. It is the default sink.
type NopReporter struct{}

// Report does nothing.
func (NopReporter) Report(Snapshot) {}

// LogReporter writes snapshots to a structured logger.
type LogReporter struct {
	Logger *slog.Logger
}

// Report logs the snapshot at info level.
func (r LogReporter) Report(s Snapshot) {
	r.Logger.Info("translation progress",
		"total", s.Total,
		"completed", s.Completed,
		"failed", s.Failed,
		"pending", s.Pending,
		"processing", s.Processing,
		"rate_limit_events", s.RateLimitedCount)
}
