// Package config loads the scheduler configuration file. YAML and JSON are
// both accepted; YAML is converted to JSON so one strict decoder covers both
// (unknown fields are rejected).
package config

import (
	"fmt"
	"strings"
	"time"

	"marketsched/internal/calendar"
	"marketsched/internal/history"
	"marketsched/internal/logging"
	"marketsched/internal/scheduler"
	"marketsched/internal/task"
)

type Config struct {
	Log       logging.Config  `json:"log"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Market    MarketConfig    `json:"market"`
	History   HistoryConfig   `json:"history"`
	Status    StatusConfig    `json:"status"`
	Tasks     []TaskConfig    `json:"tasks"`
}

type SchedulerConfig struct {
	TickInterval   string  `json:"tick_interval"`
	MaxConcurrent  int64   `json:"max_concurrent"`
	DispatchPerSec float64 `json:"dispatch_per_sec"`
	DrainTimeout   string  `json:"drain_timeout"`
}

type MarketConfig struct {
	Timezone  string       `json:"timezone"`
	Morning   WindowConfig `json:"morning"`
	Afternoon WindowConfig `json:"afternoon"`
}

type WindowConfig struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type HistoryConfig struct {
	Size        int    `json:"size"`
	SQLitePath  string `json:"sqlite_path"`
	BusyTimeout string `json:"busy_timeout"`
}

type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// TaskConfig mirrors a task definition on the wire. Pointer fields
// distinguish "omitted, use the default" from an explicit zero.
type TaskConfig struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Command         string   `json:"command"`
	Schedule        string   `json:"schedule"`
	Priority        string   `json:"priority"`
	MaxRetries      *int     `json:"max_retries"`
	TimeoutSeconds  *int     `json:"timeout_seconds"`
	MarketHoursOnly bool     `json:"market_hours_only"`
	Dependencies    []string `json:"dependencies"`
	Enabled         *bool    `json:"enabled"`
}

// Task converts the wire form into a task definition, applying defaults and
// splitting the command into its argument vector.
func (tc TaskConfig) Task() (task.Task, error) {
	argv, err := task.SplitCommand(tc.Command)
	if err != nil {
		return task.Task{}, fmt.Errorf("task %s: %w", tc.ID, err)
	}
	prio, err := task.ParsePriority(tc.Priority)
	if err != nil {
		return task.Task{}, fmt.Errorf("task %s: %w", tc.ID, err)
	}

	t := task.Task{
		ID:              tc.ID,
		Name:            tc.Name,
		Command:         tc.Command,
		Argv:            argv,
		Schedule:        tc.Schedule,
		Priority:        prio,
		MaxRetries:      task.DefaultMaxRetries,
		Timeout:         task.DefaultTimeout,
		MarketHoursOnly: tc.MarketHoursOnly,
		Dependencies:    tc.Dependencies,
		Enabled:         true,
	}
	if t.Name == "" {
		t.Name = t.ID
	}
	if tc.MaxRetries != nil {
		t.MaxRetries = *tc.MaxRetries
	}
	if tc.TimeoutSeconds != nil {
		t.Timeout = time.Duration(*tc.TimeoutSeconds) * time.Second
	}
	if tc.Enabled != nil {
		t.Enabled = *tc.Enabled
	}
	return t, nil
}

// TaskList converts all task entries, failing on the first invalid one.
func (c *Config) TaskList() ([]task.Task, error) {
	out := make([]task.Task, 0, len(c.Tasks))
	for _, tc := range c.Tasks {
		t, err := tc.Task()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Calendar builds the market calendar from the session windows.
func (c *Config) Calendar() (calendar.Calendar, error) {
	loc := time.Local
	if tz := c.Market.Timezone; tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return calendar.Calendar{}, fmt.Errorf("market.timezone: %w", err)
		}
	}
	morning := WindowConfig{Open: "09:30", Close: "11:30"}
	afternoon := WindowConfig{Open: "13:00", Close: "15:00"}
	if c.Market.Morning != (WindowConfig{}) {
		morning = c.Market.Morning
	}
	if c.Market.Afternoon != (WindowConfig{}) {
		afternoon = c.Market.Afternoon
	}
	mw, err := calendar.ParseWindow(morning.Open, morning.Close)
	if err != nil {
		return calendar.Calendar{}, fmt.Errorf("market.morning: %w", err)
	}
	aw, err := calendar.ParseWindow(afternoon.Open, afternoon.Close)
	if err != nil {
		return calendar.Calendar{}, fmt.Errorf("market.afternoon: %w", err)
	}
	return calendar.New(mw, aw, loc), nil
}

// SchedulerSettings resolves the loop configuration.
func (c *Config) SchedulerSettings() (scheduler.Config, error) {
	tick, err := durationOr("scheduler.tick_interval", c.Scheduler.TickInterval, time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	drain, err := durationOr("scheduler.drain_timeout", c.Scheduler.DrainTimeout, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		TickInterval:   tick,
		MaxConcurrent:  c.Scheduler.MaxConcurrent,
		DispatchPerSec: c.Scheduler.DispatchPerSec,
		DrainTimeout:   drain,
	}, nil
}

// HistorySettings resolves the run-history configuration.
func (c *Config) HistorySettings() (history.Config, error) {
	busy, err := durationOr("history.busy_timeout", c.History.BusyTimeout, 5*time.Second)
	if err != nil {
		return history.Config{}, err
	}
	return history.Config{
		Size:        c.History.Size,
		SQLitePath:  c.History.SQLitePath,
		BusyTimeout: busy,
	}, nil
}

// StatusAddress returns the status listener address with its default.
func (c *Config) StatusAddress() string {
	if c.Status.Address == "" {
		return "127.0.0.1:8723"
	}
	return c.Status.Address
}

// durationOr resolves a duration-valued config field like
// scheduler.tick_interval or history.busy_timeout: empty means unset and
// takes def, anything else must be a valid non-negative time.ParseDuration
// string. field names the offending key in the error.
func durationOr(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
