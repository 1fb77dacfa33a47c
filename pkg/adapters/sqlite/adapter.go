// Package sqlite provides a SQLite database adapter for leapcheck,
// backed by the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapcheck/pkg/adapter"

	_ "modernc.org/sqlite" // sqlite driver
)

const memoryPath = ":memory:"

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
	memory bool
}

// New creates a new SQLite adapter instance.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:      logger,
			Placeholder: adapter.QuestionPlaceholder,
		},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "sqlite"
}

// Connect opens the database file. An empty path or ":memory:" opens a
// private in-memory database limited to a single connection.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" {
		path = memoryPath
	}
	a.memory = path == memoryPath

	a.Logger.Debug("connecting to sqlite", slog.String("path", path))

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if a.memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// SetPoolSize is a no-op for in-memory databases.
func (a *Adapter) SetPoolSize(n int) {
	if a.memory {
		return
	}
	a.BaseSQLAdapter.SetPoolSize(n)
}

func buildDSN(path string) string {
	if path == memoryPath {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}
