package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"marketsched/internal/history"
	"marketsched/internal/task"
)

func newTestEngine(t *testing.T, opt Options) (*Engine, *history.Log) {
	t.Helper()
	hist, err := history.New(history.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("history.New: %v", err)
	}
	return New(hist, opt, zerolog.Nop()), hist
}

func shTask(id, script string) task.Task {
	return task.Task{
		ID:         id,
		Name:       id,
		Command:    "sh -c " + script,
		Argv:       []string{"sh", "-c", script},
		MaxRetries: task.DefaultMaxRetries,
		Timeout:    10 * time.Second,
		Enabled:    true,
	}
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()
	eng, hist := newTestEngine(t, Options{})

	res := eng.Execute(context.Background(), nil, shTask("ok", "echo hello"))
	if res.Status != task.StatusSuccess {
		t.Fatalf("Status = %s, want success (err=%q)", res.Status, res.Error)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Fatalf("Output = %q, want to contain hello", res.Output)
	}
	if res.RetryCount != 0 {
		t.Fatalf("RetryCount = %d, want 0", res.RetryCount)
	}
	if res.Ended.IsZero() || res.Error != "" {
		t.Fatalf("result not cleanly finalized: %+v", res)
	}
	if hist.Len() != 1 {
		t.Fatalf("history entries = %d, want exactly 1 per firing", hist.Len())
	}
}

func TestExecuteRetriesThenFails(t *testing.T) {
	t.Parallel()
	eng, hist := newTestEngine(t, Options{RetryBase: 10 * time.Millisecond, RetryMaxDelay: 40 * time.Millisecond})

	// Count spawns through an append-only marker file.
	marker := filepath.Join(t.TempDir(), "attempts")
	tk := shTask("flaky", "echo x >> "+marker+"; echo boom >&2; exit 1")
	tk.MaxRetries = 2

	res := eng.Execute(context.Background(), nil, tk)
	if res.Status != task.StatusFailed {
		t.Fatalf("Status = %s, want failed", res.Status)
	}
	if res.RetryCount != 2 {
		t.Fatalf("RetryCount = %d, want 2", res.RetryCount)
	}
	if !strings.Contains(res.Error, "exit status 1") {
		t.Fatalf("Error = %q, want exit status", res.Error)
	}
	if !strings.Contains(res.Output, "boom") {
		t.Fatalf("Output = %q, want captured stderr", res.Output)
	}

	b, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if spawns := strings.Count(string(b), "x"); spawns != 3 {
		t.Fatalf("spawns = %d, want 3 (attempts 0, 1, 2)", spawns)
	}
	if hist.Len() != 1 {
		t.Fatalf("history entries = %d, want exactly 1 for the whole retry sequence", hist.Len())
	}
}

func TestExecuteTimeoutIsTerminal(t *testing.T) {
	t.Parallel()
	eng, hist := newTestEngine(t, Options{RetryBase: 10 * time.Millisecond})

	tk := shTask("slow", "sleep 30")
	tk.Timeout = 150 * time.Millisecond
	tk.MaxRetries = 3

	start := time.Now()
	res := eng.Execute(context.Background(), nil, tk)
	if res.Status != task.StatusFailed {
		t.Fatalf("Status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Error, "timeout") {
		t.Fatalf("Error = %q, want timeout", res.Error)
	}
	if res.RetryCount != 0 {
		t.Fatalf("RetryCount = %d, want 0: timeouts are never retried", res.RetryCount)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("took %v: timeout did not cut the run short", elapsed)
	}
	if hist.Len() != 1 {
		t.Fatalf("history entries = %d, want 1", hist.Len())
	}
}

func TestExecuteSpawnErrorNotRetried(t *testing.T) {
	t.Parallel()
	eng, _ := newTestEngine(t, Options{RetryBase: 10 * time.Millisecond})

	tk := task.Task{
		ID:         "missing",
		Argv:       []string{"/nonexistent-binary-for-test"},
		MaxRetries: 3,
		Timeout:    time.Second,
	}
	res := eng.Execute(context.Background(), nil, tk)
	if res.Status != task.StatusFailed {
		t.Fatalf("Status = %s, want failed", res.Status)
	}
	if res.RetryCount != 0 {
		t.Fatalf("RetryCount = %d, want 0 for a spawn error", res.RetryCount)
	}
	if res.Error == "" {
		t.Fatal("expected the spawn error message to be recorded")
	}
}

func TestExecuteStopInterruptsBackoff(t *testing.T) {
	t.Parallel()
	eng, hist := newTestEngine(t, Options{RetryBase: 10 * time.Second})

	stopCh := make(chan struct{})
	tk := shTask("stopped", "exit 1")
	tk.MaxRetries = 5

	done := make(chan task.Result, 1)
	go func() { done <- eng.Execute(context.Background(), stopCh, tk) }()

	time.Sleep(200 * time.Millisecond)
	close(stopCh)

	select {
	case res := <-done:
		if res.Status != task.StatusFailed {
			t.Fatalf("Status = %s, want failed", res.Status)
		}
		if !strings.Contains(res.Error, "stopped") {
			t.Fatalf("Error = %q, want stop reason", res.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after stop: backoff sleep not interruptible")
	}
	if hist.Len() != 1 {
		t.Fatalf("history entries = %d, want 1", hist.Len())
	}
}

func TestSkipRecordsResult(t *testing.T) {
	t.Parallel()
	eng, hist := newTestEngine(t, Options{})

	res := eng.Skip(shTask("gated", "echo never"), "market closed")
	if res.Status != task.StatusSkipped {
		t.Fatalf("Status = %s, want skipped", res.Status)
	}
	if res.Output != "" || res.Error != "" || res.Duration != 0 {
		t.Fatalf("skip must carry no output/error and zero duration: %+v", res)
	}
	if hist.Len() != 1 {
		t.Fatalf("history entries = %d, want 1", hist.Len())
	}
}

func TestBackoffDelaySequence(t *testing.T) {
	t.Parallel()
	opt := Options{}.withDefaults()
	want := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second, 300 * time.Second, 300 * time.Second}
	for attempt, w := range want {
		if got := backoffDelay(opt, attempt); got != w {
			t.Fatalf("backoffDelay(attempt=%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestOutputTruncation(t *testing.T) {
	t.Parallel()
	eng, _ := newTestEngine(t, Options{OutputLimit: 32})

	res := eng.Execute(context.Background(), nil, shTask("noisy", "yes | head -c 4096"))
	if res.Status != task.StatusSuccess {
		t.Fatalf("Status = %s, want success", res.Status)
	}
	if !strings.Contains(res.Output, "[output truncated]") {
		t.Fatalf("Output = %q, want truncation marker", res.Output)
	}
	if len(res.Output) > 64 {
		t.Fatalf("Output length = %d, want bounded", len(res.Output))
	}
}
