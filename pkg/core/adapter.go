package core

import "context"

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string
	URL      string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// Conn is a dedicated store connection checked out for one rule execution.
type Conn interface {
	// QueryOne returns the first row of the statement's result, or an empty
	// Row when the result is empty.
	QueryOne(ctx context.Context, stmt Statement) (Row, error)

	// QueryAll returns up to limit rows. A limit of zero means unlimited.
	QueryAll(ctx context.Context, stmt Statement, limit int) ([]Row, error)

	// Close returns the connection to the pool.
	Close() error
}
