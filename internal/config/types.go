// Package config loads leapcheck configuration from defaults, a YAML file,
// LEAPCHECK_ environment variables and command-line flags.
package config

import (
	"time"

	"github.com/leapstack-labs/leapcheck/internal/engine"
	"github.com/leapstack-labs/leapcheck/internal/publish"
	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// TargetConfig holds the connection settings of the validated store.
type TargetConfig struct {
	Type string `koanf:"type"` // postgres, duckdb, sqlite

	// URL is a complete DSN. When set it is used verbatim.
	URL string `koanf:"url"`

	// File-based databases (DuckDB, SQLite)
	Path string `koanf:"path"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g. DuckDB extensions)
	Params map[string]any `koanf:"params"`
}

// AdapterConfig converts the target to the adapter contract type.
func (t TargetConfig) AdapterConfig() core.AdapterConfig {
	return core.AdapterConfig{
		Type:     t.Type,
		URL:      t.URL,
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// RetryConfig controls retries of transient store errors.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

// Engine converts the retry settings to the engine's type.
func (r RetryConfig) Engine() engine.RetryConfig {
	return engine.RetryConfig{MaxAttempts: r.MaxAttempts, BaseDelay: r.BaseDelay, MaxDelay: r.MaxDelay}
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	// Textfile is written after each run-task when set.
	Textfile string `koanf:"textfile"`
}

// PublishConfig configures artifact publishing from final-report.
type PublishConfig struct {
	Enabled        bool `koanf:"enabled"`
	publish.Config `koanf:",squash"`
}

// Config holds all leapcheck configuration options.
type Config struct {
	OutputDir string        `koanf:"output_dir"`
	Manifest  string        `koanf:"manifest"`
	StatePath string        `koanf:"state_path"`
	Workers   int           `koanf:"workers"`
	Strict    bool          `koanf:"strict"`
	Verbose   bool          `koanf:"verbose"`
	Output    string        `koanf:"output"`
	Retry     RetryConfig   `koanf:"retry"`
	Target    TargetConfig  `koanf:"target"`
	Log       LogConfig     `koanf:"log"`
	Metrics   MetricsConfig `koanf:"metrics"`
	Publish   PublishConfig `koanf:"publish"`

	// ProjectRoot anchors relative paths; File is the config file read, if any.
	ProjectRoot string `koanf:"-"`
	File        string `koanf:"-"`
}
