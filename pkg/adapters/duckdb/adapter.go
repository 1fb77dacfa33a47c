// Package duckdb provides a DuckDB database adapter for leapcheck.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapcheck/pkg/adapter"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

var settingName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
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
	return "duckdb"
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", params.dsn(path))
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	if err := applyParams(ctx, db, params); err != nil {
		_ = db.Close()
		return err
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

func applyParams(ctx context.Context, db *sql.DB, p *Params) error {
	for _, ext := range p.Extensions {
		if !settingName.MatchString(ext) {
			return fmt.Errorf("invalid duckdb extension name %q", ext)
		}
		for _, verb := range []string{"INSTALL", "LOAD"} {
			if _, err := db.ExecContext(ctx, verb+" "+ext); err != nil {
				return fmt.Errorf("failed to %s duckdb extension %s: %w", strings.ToLower(verb), ext, err)
			}
		}
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !settingName.MatchString(k) {
			return fmt.Errorf("invalid duckdb setting name %q", k)
		}
		v := strings.ReplaceAll(p.Settings[k], "'", "''")
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", k, v)); err != nil {
			return fmt.Errorf("failed to apply duckdb setting %s: %w", k, err)
		}
	}
	return nil
}
