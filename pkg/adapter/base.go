package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Conn and SetPoolSize implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.AdapterConfig
	Logger *slog.Logger

	// Placeholder renders the n-th (1-based) positional parameter.
	// Nil means "?".
	Placeholder func(n int) string
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// SetPoolSize sizes the pool so every worker can hold its own connection.
func (b *BaseSQLAdapter) SetPoolSize(n int) {
	if b.DB == nil || n <= 0 {
		return
	}
	b.DB.SetMaxOpenConns(n)
	b.DB.SetMaxIdleConns(n)
}

// Conn checks out a dedicated connection from the pool.
func (b *BaseSQLAdapter) Conn(ctx context.Context) (core.Conn, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	c, err := b.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check out connection: %w", err)
	}
	placeholder := b.Placeholder
	if placeholder == nil {
		placeholder = QuestionPlaceholder
	}
	return &sqlConn{conn: c, placeholder: placeholder}, nil
}

type sqlConn struct {
	conn        *sql.Conn
	placeholder func(int) string
}

func (c *sqlConn) QueryOne(ctx context.Context, stmt core.Statement) (core.Row, error) {
	rows, err := c.query(ctx, stmt, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return core.Row{}, nil
	}
	return rows[0], nil
}

func (c *sqlConn) QueryAll(ctx context.Context, stmt core.Statement, limit int) ([]core.Row, error) {
	return c.query(ctx, stmt, limit)
}

func (c *sqlConn) query(ctx context.Context, stmt core.Statement, limit int) ([]core.Row, error) {
	query, args, err := Bind(stmt, c.placeholder)
	if err != nil {
		return nil, err
	}
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return ScanRows(rows, limit)
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}

// ScanRows reads up to limit rows (zero means all) into core.Row maps.
// []byte values are copied into strings.
func ScanRows(rows *sql.Rows, limit int) ([]core.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []core.Row
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(core.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
