package engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leapstack-labs/leapcheck/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("syntax error"), want: false},
		{name: "bad conn", err: fmt.Errorf("query: %w", driver.ErrBadConn), want: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "connection reset", err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, want: true},
		{name: "connection refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: true},
		{name: "marked transient", err: &core.TransientStoreError{Err: errors.New("x")}, want: true},
		{name: "pg connection exception", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "pg admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: true},
		{name: "pg serialization failure", err: fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40001"}), want: true},
		{name: "pg deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "pg undefined table", err: &pgconn.PgError{Code: "42P01"}, want: false},
		{name: "dns host not found", err: &net.DNSError{Err: "no such host", Name: "db.invalid", IsNotFound: true}, want: false},
		{name: "dial to unknown host", err: &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Name: "db.invalid", IsNotFound: true}}, want: false},
		{name: "dns timeout", err: &net.DNSError{Name: "db", IsTimeout: true}, want: true},
		{name: "dns temporary", err: &net.DNSError{Name: "db", IsTemporary: true}, want: true},
		{name: "network timeout", err: &net.OpError{Op: "write", Err: timeoutError{}}, want: true},
		{name: "dial failure", err: &net.OpError{Op: "dial", Err: errors.New("no route to host")}, want: true},
		{name: "broken pipe on write", err: &net.OpError{Op: "write", Err: syscall.EPIPE}, want: false},
		{name: "invalid address", err: &net.AddrError{Err: "missing port in address", Addr: "db"}, want: false},
		{name: "cancelled", err: fmt.Errorf("query: %w", context.Canceled), want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
