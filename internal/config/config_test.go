package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"marketsched/internal/task"
)

const sampleYAML = `log:
  level: debug
  console: true
scheduler:
  tick_interval: 2s
  max_concurrent: 4
market:
  timezone: UTC
  morning: {open: "09:30", close: "11:30"}
  afternoon: {open: "13:00", close: "15:00"}
history:
  size: 500
status:
  enabled: true
  address: "127.0.0.1:9090"
tasks:
  - id: download
    name: Daily data download
    command: python3 scripts/download.py --all
    schedule: daily_08_30
    priority: high
    max_retries: 5
    timeout_seconds: 1800
  - id: report
    command: python3 scripts/report.py
    schedule: daily_16_00
    dependencies: [download]
    enabled: false
  - id: monitor
    command: python3 scripts/monitor.py
    schedule: every_5_minutes
    market_hours_only: true
`

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path, zerolog.Nop())
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "sched.yaml", sampleYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sc, err := cfg.SchedulerSettings()
	if err != nil {
		t.Fatalf("SchedulerSettings: %v", err)
	}
	if sc.TickInterval != 2*time.Second || sc.MaxConcurrent != 4 {
		t.Fatalf("unexpected scheduler settings %+v", sc)
	}
	if sc.DrainTimeout != 30*time.Second {
		t.Fatalf("DrainTimeout default = %v, want 30s", sc.DrainTimeout)
	}

	tasks, err := cfg.TaskList()
	if err != nil {
		t.Fatalf("TaskList: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("tasks = %d, want 3", len(tasks))
	}

	dl := tasks[0]
	if dl.ID != "download" || dl.Priority != task.PriorityHigh || dl.MaxRetries != 5 {
		t.Fatalf("unexpected download task %+v", dl)
	}
	if dl.Timeout != 1800*time.Second {
		t.Fatalf("Timeout = %v, want 1800s", dl.Timeout)
	}
	if len(dl.Argv) != 3 || dl.Argv[0] != "python3" || dl.Argv[2] != "--all" {
		t.Fatalf("Argv = %v", dl.Argv)
	}

	rp := tasks[1]
	if rp.Name != "report" {
		t.Fatalf("Name default = %q, want id", rp.Name)
	}
	if rp.Enabled {
		t.Fatal("explicit enabled: false must stick")
	}
	if rp.MaxRetries != task.DefaultMaxRetries || rp.Timeout != task.DefaultTimeout {
		t.Fatalf("defaults not applied: %+v", rp)
	}

	if !tasks[2].MarketHoursOnly || !tasks[2].Enabled {
		t.Fatalf("unexpected monitor task %+v", tasks[2])
	}

	cal, err := cfg.Calendar()
	if err != nil {
		t.Fatalf("Calendar: %v", err)
	}
	if !cal.IsOpen(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)) {
		t.Fatal("calendar not built from config windows")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "sched.yaml", "schedulerr:\n  tick_interval: 1s\n")
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestTaskConfigQuotedCommand(t *testing.T) {
	t.Parallel()
	tc := TaskConfig{ID: "x", Command: `sh -c "echo a b"`, Schedule: "every_minute"}
	tk, err := tc.Task()
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if len(tk.Argv) != 3 || tk.Argv[2] != "echo a b" {
		t.Fatalf("Argv = %v, want quoted segment preserved", tk.Argv)
	}
}

func TestLoadJSONFile(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "sched.json", `{"scheduler": {"tick_interval": "500ms"}, "tasks": []}`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sc, err := cfg.SchedulerSettings()
	if err != nil {
		t.Fatalf("SchedulerSettings: %v", err)
	}
	if sc.TickInterval != 500*time.Millisecond {
		t.Fatalf("TickInterval = %v, want 500ms", sc.TickInterval)
	}
}

func TestDurationFields(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	sc, err := cfg.SchedulerSettings()
	if err != nil {
		t.Fatalf("SchedulerSettings: %v", err)
	}
	if sc.TickInterval != time.Second || sc.DrainTimeout != 30*time.Second {
		t.Fatalf("empty fields must take defaults, got %+v", sc)
	}

	cfg.Scheduler.TickInterval = "250ms"
	if sc, err = cfg.SchedulerSettings(); err != nil || sc.TickInterval != 250*time.Millisecond {
		t.Fatalf("TickInterval = %v, %v", sc.TickInterval, err)
	}

	for _, bad := range []string{"soon", "5", "-2s"} {
		cfg.Scheduler.TickInterval = bad
		if _, err := cfg.SchedulerSettings(); err == nil {
			t.Fatalf("tick_interval %q accepted", bad)
		}
	}

	cfg = &Config{History: HistoryConfig{BusyTimeout: "oops"}}
	if _, err := cfg.HistorySettings(); err == nil {
		t.Fatal("history.busy_timeout must reject a malformed duration")
	}
}

func TestWatchPublishesOnChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "sched.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m := NewManager(path, zerolog.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := m.Subscribe(1)
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(200 * time.Millisecond) // let the watcher attach

	updated := sampleYAML + "  - id: extra\n    command: \"true\"\n    schedule: every_hour\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		if len(cfg.Tasks) != 4 {
			t.Fatalf("published config has %d tasks, want 4", len(cfg.Tasks))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published after file change")
	}
}
