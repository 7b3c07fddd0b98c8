// Package history keeps the append-only log of task results and answers the
// queries the scheduler needs: last same-day result per task, dependency
// satisfaction, and rolling execution stats.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketsched/internal/task"
)

type Config struct {
	// Size bounds the in-memory log. Results older than the cap are dropped
	// from memory; the SQLite journal keeps the full record.
	Size int
	// SQLitePath enables the write-through journal when non-empty.
	SQLitePath  string
	BusyTimeout time.Duration
}

const defaultSize = 10000

// Log is the run history. Appends and reads are mutex-guarded: executor
// goroutines append concurrently while the tick loop reads for dependency
// resolution and status reporting.
type Log struct {
	mu      sync.Mutex
	results []task.Result

	max   int
	log   zerolog.Logger
	store *sqliteStore
}

func New(cfg Config, log zerolog.Logger) (*Log, error) {
	max := cfg.Size
	if max <= 0 {
		max = defaultSize
	}
	l := &Log{max: max, log: log.With().Str("comp", "history").Logger()}
	if cfg.SQLitePath != "" {
		st, err := openSQLite(cfg, l.log)
		if err != nil {
			return nil, err
		}
		l.store = st
		l.log.Info().Str("path", cfg.SQLitePath).Msg("history journal enabled")
	}
	return l, nil
}

// Append records a terminal result. Exactly one call per firing; the journal
// write is best-effort and never blocks scheduling on a disk error.
func (l *Log) Append(r task.Result) {
	l.mu.Lock()
	l.results = append(l.results, r)
	if len(l.results) > l.max {
		l.results = l.results[len(l.results)-l.max:]
	}
	l.mu.Unlock()

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := l.store.append(ctx, r); err != nil {
			l.log.Warn().Err(err).Str("task", r.TaskID).Msg("journal append failed")
		}
		cancel()
	}
}

// LastForDay returns the most recent result for taskID whose start time falls
// on the same calendar day as day.
func (l *Log) LastForDay(taskID string, day time.Time) (task.Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastForDayLocked(taskID, day)
}

func (l *Log) lastForDayLocked(taskID string, day time.Time) (task.Result, bool) {
	for i := len(l.results) - 1; i >= 0; i-- {
		r := l.results[i]
		if r.TaskID == taskID && sameDay(r.Started, day) {
			return r, true
		}
	}
	return task.Result{}, false
}

// DependenciesSatisfied reports whether every dependency of t has a same-day
// most-recent result with status success. Short-circuits on the first unmet
// dependency. Never cached: a dependency may complete between two ticks.
func (l *Log) DependenciesSatisfied(t task.Task, day time.Time) bool {
	if len(t.Dependencies) == 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, dep := range t.Dependencies {
		r, ok := l.lastForDayLocked(dep, day)
		if !ok || r.Status != task.StatusSuccess {
			return false
		}
	}
	return true
}

// Recent returns up to n most recent results, newest last.
func (l *Log) Recent(n int) []task.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.results) {
		n = len(l.results)
	}
	out := make([]task.Result, n)
	copy(out, l.results[len(l.results)-n:])
	return out
}

// Len reports the in-memory result count.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.results)
}

// Close flushes and closes the journal, if any.
func (l *Log) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.close()
}

// sameDay compares calendar dates in the first argument's location.
func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
