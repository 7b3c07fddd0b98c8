package history

import (
	"time"

	"marketsched/internal/task"
)

// Stats are execution counts over a window. SuccessRate is derived from
// executed firings only; skips are reported separately because a gating skip
// is not an execution failure.
type Stats struct {
	Total       int     `json:"total"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	SuccessRate float64 `json:"success_rate"`
}

// Window computes stats over results started at or after since.
func (l *Log) Window(since time.Time) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Stats
	// Results are appended in completion order, not start order, so this
	// cannot early-exit on the first old entry.
	for _, r := range l.results {
		if r.Started.Before(since) {
			continue
		}
		s.Total++
		switch r.Status {
		case task.StatusSuccess:
			s.Success++
		case task.StatusFailed:
			s.Failed++
		case task.StatusSkipped:
			s.Skipped++
		}
	}
	if executed := s.Success + s.Failed; executed > 0 {
		s.SuccessRate = float64(s.Success) / float64(executed)
	}
	return s
}
