package task

import (
	"time"

	"github.com/google/uuid"
)

// Status of a single firing. Pending and Running are transient; Success,
// Failed and Skipped are terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// Result records one execution attempt sequence for one scheduled firing.
// Exactly one Result is appended to the run history per firing; RetryCount is
// the attempt number at which the terminal state was reached.
type Result struct {
	ID         string        `json:"id"`
	TaskID     string        `json:"task_id"`
	Status     Status        `json:"status"`
	Started    time.Time     `json:"started"`
	Ended      time.Time     `json:"ended,omitzero"`
	Duration   time.Duration `json:"duration"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	RetryCount int           `json:"retry_count"`
}

// NewResult starts a result record for a firing of t.
func NewResult(t Task, now time.Time) Result {
	return Result{
		ID:      uuid.NewString(),
		TaskID:  t.ID,
		Status:  StatusPending,
		Started: now,
	}
}

// Skipped builds the terminal record for a firing rejected by gating: no
// output, no error, zero duration. Recording skips explicitly keeps a skipped
// dependency distinguishable from a never-attempted one.
func Skipped(t Task, now time.Time) Result {
	return Result{
		ID:      uuid.NewString(),
		TaskID:  t.ID,
		Status:  StatusSkipped,
		Started: now,
		Ended:   now,
	}
}
