package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults applied when a task definition leaves these unset.
const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 3600 * time.Second
)

// Priority is informational only: it does not affect scheduling order today,
// it exists to disambiguate any future ordering needs.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityNormal, fmt.Errorf("invalid priority %q", s)
	}
}

// Task is the immutable definition of a unit of recurring work.
//
// Command is the original, opaque invocation string; Argv is its parsed
// argument vector. The executor spawns Argv directly and never hands the
// string to a shell.
type Task struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Command         string        `json:"command"`
	Argv            []string      `json:"argv"`
	Schedule        string        `json:"schedule"`
	Priority        Priority      `json:"priority"`
	MaxRetries      int           `json:"max_retries"`
	Timeout         time.Duration `json:"timeout"`
	MarketHoursOnly bool          `json:"market_hours_only"`
	Dependencies    []string      `json:"dependencies,omitempty"`
	Enabled         bool          `json:"enabled"`
}

// Validate checks the structural fields. Schedule validation is the trigger
// package's job and happens at registration.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("task id is required")
	}
	if len(t.Argv) == 0 {
		return fmt.Errorf("task %s: command is required", t.ID)
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("task %s: max_retries must be >= 0", t.ID)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("task %s: timeout must be > 0", t.ID)
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("task %s: depends on itself", t.ID)
		}
	}
	return nil
}

// SplitCommand turns an opaque command string into an argument vector.
// Single and double quotes group words; there is no variable expansion,
// globbing, or any other shell behavior.
func SplitCommand(command string) ([]string, error) {
	var (
		argv  []string
		cur   strings.Builder
		quote rune
		open  bool
	)
	flush := func() {
		if cur.Len() > 0 {
			argv = append(argv, cur.String())
			cur.Reset()
		}
	}
	for _, r := range command {
		switch {
		case open && r == quote:
			open = false
			// quoted empty string becomes an empty arg
			argv = append(argv, cur.String())
			cur.Reset()
		case open:
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			open = true
			quote = r
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if open {
		return nil, fmt.Errorf("unterminated %c quote in command %q", quote, command)
	}
	flush()
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	return argv, nil
}
