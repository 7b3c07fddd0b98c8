package scheduler

import (
	"time"

	"marketsched/internal/history"
)

// Snapshot is the synchronous status view served to operators.
type Snapshot struct {
	Running     bool           `json:"running"`
	MarketOpen  bool           `json:"market_open"`
	Tasks       int            `json:"tasks"`
	Enabled     int            `json:"enabled"`
	InFlight    int            `json:"in_flight"`
	InFlightIDs []string       `json:"in_flight_ids,omitempty"`
	Last24h     history.Stats  `json:"last_24h"`
	Schedules   []ScheduleInfo `json:"schedules"`
}

type ScheduleInfo struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Schedule        string    `json:"schedule"`
	Priority        string    `json:"priority"`
	Enabled         bool      `json:"enabled"`
	MarketHoursOnly bool      `json:"market_hours_only"`
	Next            time.Time `json:"next,omitzero"`
}

func (s *Scheduler) Snapshot() Snapshot {
	now := time.Now()

	s.mu.Lock()
	running := s.running
	inflight := make([]string, 0, len(s.inflight))
	for id := range s.inflight {
		inflight = append(inflight, id)
	}
	next := make(map[string]time.Time, len(s.nextRuns))
	for id, nr := range s.nextRuns {
		next[id] = nr.at
	}
	s.mu.Unlock()

	entries := s.reg.List()
	snap := Snapshot{
		Running:     running,
		MarketOpen:  s.cal.IsOpen(now),
		Tasks:       len(entries),
		InFlight:    len(inflight),
		InFlightIDs: inflight,
		Last24h:     s.hist.Window(now.Add(-24 * time.Hour)),
		Schedules:   make([]ScheduleInfo, 0, len(entries)),
	}
	for _, e := range entries {
		t := e.Task
		if t.Enabled {
			snap.Enabled++
		}
		snap.Schedules = append(snap.Schedules, ScheduleInfo{
			ID:              t.ID,
			Name:            t.Name,
			Schedule:        t.Schedule,
			Priority:        t.Priority.String(),
			Enabled:         t.Enabled,
			MarketHoursOnly: t.MarketHoursOnly,
			Next:            next[t.ID],
		})
	}
	return snap
}
