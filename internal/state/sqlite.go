package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the database and applies pending migrations.
// Use ":memory:" for an in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	s := NewSQLiteStore(logger)
	if err := s.Open(path); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Open opens a connection to the SQLite database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened state store", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// RecordTaskRun stores one task execution. An empty ID is filled with a new
// UUID and an empty status is derived from the failure count.
func (s *SQLiteStore) RecordTaskRun(ctx context.Context, run TaskRun) (*TaskRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if run.RunID == "" || run.Task == "" {
		return nil, fmt.Errorf("task run needs a run id and a task")
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = StatusFor(run.Failed, nil)
	}
	run.StartedAt = run.StartedAt.UTC()
	run.CompletedAt = run.CompletedAt.UTC()

	s.logger.Debug("recording task run",
		slog.String("id", run.ID),
		slog.String("run_id", run.RunID),
		slog.String("task", run.Task),
		slog.String("status", string(run.Status)))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs (id, run_id, task, started_at, completed_at, total, failed, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunID, run.Task,
		run.StartedAt.Format(timeLayout), run.CompletedAt.Format(timeLayout),
		run.Total, run.Failed, string(run.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record task run: %w", err)
	}
	return &run, nil
}

// ListTaskRuns returns executions newest first. An empty runID lists every
// run; limit <= 0 means no limit.
func (s *SQLiteStore) ListTaskRuns(ctx context.Context, runID string, limit int) ([]TaskRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT id, run_id, task, started_at, completed_at, total, failed, status FROM task_runs`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list task runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TaskRun
	for rows.Next() {
		var (
			r                  TaskRun
			started, completed string
			status             string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Task, &started, &completed, &r.Total, &r.Failed, &status); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("bad started_at for task run %s: %w", r.ID, err)
		}
		if r.CompletedAt, err = time.Parse(timeLayout, completed); err != nil {
			return nil, fmt.Errorf("bad completed_at for task run %s: %w", r.ID, err)
		}
		r.Status = TaskRunStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
