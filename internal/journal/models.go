package journal

import "time"

// Status is the outcome recorded for one execution.
type Status string

const (
	StatusRunning     Status = "running"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusSpawnFailed Status = "spawn_failed"
	StatusInterrupted Status = "interrupted"
)

// DaemonStopReason is the error message stamped on rows that were still
// running when a daemon stopped.
const DaemonStopReason = "daemon stopped before the command finished"

// Entry is one journal row.
type Entry struct {
	ID           int64
	RequestID    string
	ClientPID    int
	Command      string
	OutputPath   string
	ErrorPath    string
	Status       Status
	ExitCode     *int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the command ran, or zero while it is running.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() || e.StartedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}
