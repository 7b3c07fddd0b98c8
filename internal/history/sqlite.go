package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"marketsched/internal/task"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore is the write-through journal. It is never read back to
// reconstruct scheduling state; the in-memory log is authoritative for the
// lifetime of the process.
type sqliteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func openSQLite(cfg Config, log zerolog.Logger) (*sqliteStore, error) {
	if strings.TrimSpace(cfg.SQLitePath) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) append(ctx context.Context, r task.Result) error {
	var ended any
	if !r.Ended.IsZero() {
		ended = r.Ended.Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_results(id, task_id, status, started, ended, duration_ms, retry_count, output, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.ID, r.TaskID, string(r.Status), r.Started.Format(time.RFC3339Nano), ended,
		r.Duration.Milliseconds(), r.RetryCount, nullStr(r.Output), nullStr(r.Error),
	)
	return err
}

// countForTask exists for operator tooling and tests; scheduling never reads
// the journal.
func (s *sqliteStore) countForTask(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_results WHERE task_id = ?`, taskID).Scan(&n)
	return n, err
}

func (s *sqliteStore) close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
