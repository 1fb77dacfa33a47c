package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapcheck/pkg/adapter"
)

// Validate checks the configuration for values the commands cannot use.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 < base_delay <= max_delay")
	}
	if err := c.Target.Validate(); err != nil {
		return fmt.Errorf("invalid target configuration: %w", err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", c.Log.Format)
	}
	switch c.Output {
	case "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("unknown output format %q (expected auto, text, markdown or json)", c.Output)
	}
	return nil
}

// Validate checks that the target names a registered adapter.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(t.Type) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
