package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type exportFile struct {
	ExportedAt time.Time   `json:"exported_at"`
	Tasks      []taskExport `json:"tasks"`
}

type taskExport struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Command         string   `json:"command"`
	Schedule        string   `json:"schedule"`
	Priority        string   `json:"priority"`
	MaxRetries      int      `json:"max_retries"`
	TimeoutSeconds  int      `json:"timeout_seconds"`
	MarketHoursOnly bool     `json:"market_hours_only"`
	Dependencies    []string `json:"dependencies,omitempty"`
	Enabled         bool     `json:"enabled"`
}

// ExportSnapshot writes a point-in-time JSON snapshot of the task definitions
// for operator inspection. It is never read back to reconstruct state.
func (r *Registry) ExportSnapshot(path string) error {
	entries := r.List()
	out := exportFile{ExportedAt: time.Now(), Tasks: make([]taskExport, 0, len(entries))}
	for _, e := range entries {
		t := e.Task
		out.Tasks = append(out.Tasks, taskExport{
			ID:              t.ID,
			Name:            t.Name,
			Command:         t.Command,
			Schedule:        t.Schedule,
			Priority:        t.Priority.String(),
			MaxRetries:      t.MaxRetries,
			TimeoutSeconds:  int(t.Timeout.Seconds()),
			MarketHoursOnly: t.MarketHoursOnly,
			Dependencies:    t.Dependencies,
			Enabled:         t.Enabled,
		})
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// Write-then-rename so a concurrent reader never sees a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
