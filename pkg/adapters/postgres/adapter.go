// Package postgres provides a PostgreSQL database adapter for leapcheck.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/leapstack-labs/leapcheck/pkg/adapter"
)

// DefaultApplicationName is reported to the server unless options override it.
const DefaultApplicationName = "leapcheck"

// runtimeOptions are target options passed to the server as session
// parameters rather than as connection settings.
var runtimeOptions = []string{"application_name", "statement_timeout", "lock_timeout", "search_path"}

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:      logger,
			Placeholder: adapter.DollarPlaceholder,
		},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "postgres"
}

// Connect opens a pgx-backed database/sql pool and verifies it with a ping.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	connCfg, err := parseConfig(cfg)
	if err != nil {
		return err
	}

	a.Logger.Debug("connecting to postgres",
		slog.String("host", connCfg.Host),
		slog.Int("port", int(connCfg.Port)),
		slog.String("database", connCfg.Database),
		slog.Bool("url", cfg.URL != ""))

	db := stdlib.OpenDB(*connCfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// parseConfig builds the pgx connection config. A configured URL is used
// verbatim as the DSN; session options are layered on top of it.
func parseConfig(cfg adapter.Config) (*pgx.ConnConfig, error) {
	dsn := cfg.URL
	if dsn == "" {
		dsn = buildPostgresDSN(cfg)
	}
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres connection settings: %w", err)
	}

	params := connCfg.RuntimeParams
	if params == nil {
		params = make(map[string]string)
		connCfg.RuntimeParams = params
	}
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = DefaultApplicationName
	}
	if cfg.Schema != "" {
		params["search_path"] = cfg.Schema
	}
	for _, key := range runtimeOptions {
		if v, ok := cfg.Options[key]; ok {
			params[key] = v
		}
	}
	return connCfg, nil
}

// buildPostgresDSN renders a keyword/value connection string. Options that
// are session parameters are left to parseConfig.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	kv := map[string]string{
		"host":    host,
		"port":    fmt.Sprint(port),
		"dbname":  cfg.Database,
		"sslmode": "disable",
	}
	if cfg.Username != "" {
		kv["user"] = cfg.Username
	}
	if cfg.Password != "" {
		kv["password"] = cfg.Password
	}
	for k, v := range cfg.Options {
		if !isRuntimeOption(k) {
			kv[k] = v
		}
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteValue(kv[k]))
	}
	return strings.Join(parts, " ")
}

func isRuntimeOption(key string) bool {
	for _, k := range runtimeOptions {
		if k == key {
			return true
		}
	}
	return false
}

// quoteValue quotes a keyword/value setting when it is empty or contains
// spaces, quotes or backslashes.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
