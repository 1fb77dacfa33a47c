// Package adapter provides the database adapter contract used by the
// leapcheck execution engine.
//
// This package contains the public contract that all database adapters must implement.
// Concrete adapter implementations are in pkg/adapters/ subdirectories.
package adapter

import (
	"context"

	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// Config is an alias for core.AdapterConfig.
type Config = core.AdapterConfig

// Adapter defines the interface that all database adapters must implement.
type Adapter interface {
	// Connect establishes a connection pool using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the pool and releases resources.
	Close() error

	// DialectName returns the adapter's dialect, e.g. "postgres".
	DialectName() string

	// Conn checks out a dedicated connection. Callers must Close it.
	Conn(ctx context.Context) (core.Conn, error)
}

// PoolSizer is implemented by adapters whose pool size can be matched to
// the engine's worker count.
type PoolSizer interface {
	SetPoolSize(n int)
}
