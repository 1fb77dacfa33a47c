// Package engine executes the rules of a task concurrently against a store.
// Every rule yields exactly one result: failures, panics and exhausted
// retries are captured as failed results, never propagated.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapcheck/internal/metrics"
	"github.com/leapstack-labs/leapcheck/internal/registry"
	"github.com/leapstack-labs/leapcheck/internal/state"
	"github.com/leapstack-labs/leapcheck/pkg/adapter"
)

// Defaults.
const (
	DefaultWorkers     = 6
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
)

// RetryConfig controls retries of transient store errors.
type RetryConfig struct {
	// MaxAttempts includes the first attempt. 1 disables retries.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Recorder stores a summary of each task execution.
type Recorder interface {
	RecordTaskRun(ctx context.Context, run state.TaskRun) (*state.TaskRun, error)
}

// Config holds engine configuration.
type Config struct {
	// Adapter is a connected store adapter.
	Adapter adapter.Adapter
	// Registry supplies the rules of each task.
	Registry *registry.Registry
	// Workers bounds concurrent rule executions (default 6).
	Workers int
	// Strict makes an unknown or empty task an error.
	Strict bool
	Retry  RetryConfig
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Metrics and State are optional.
	Metrics *metrics.Metrics
	State   Recorder
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the clock used to stamp results.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs tasks.
type Engine struct {
	adapter  adapter.Adapter
	registry *registry.Registry
	workers  int
	strict   bool
	retry    RetryConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	state    Recorder
	now      func() time.Time
}

// New creates an engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("engine needs an adapter")
	}
	if cfg.Registry == nil {
		return nil, errors.New("engine needs a registry")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine{
		adapter:  cfg.Adapter,
		registry: cfg.Registry,
		workers:  cfg.Workers,
		strict:   cfg.Strict,
		retry:    cfg.Retry,
		logger:   logger,
		metrics:  cfg.Metrics,
		state:    cfg.State,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if e.workers == 0 {
		e.workers = DefaultWorkers
	}
	if e.retry.MaxAttempts <= 0 {
		e.retry.MaxAttempts = DefaultMaxAttempts
	}
	if e.retry.BaseDelay <= 0 {
		e.retry.BaseDelay = DefaultBaseDelay
	}
	if e.retry.MaxDelay <= 0 {
		e.retry.MaxDelay = DefaultMaxDelay
	}
	if e.retry.MaxDelay < e.retry.BaseDelay {
		e.retry.MaxDelay = e.retry.BaseDelay
	}
	for _, opt := range opts {
		opt(e)
	}

	if ps, ok := e.adapter.(adapter.PoolSizer); ok {
		ps.SetPoolSize(e.workers)
	}

	logger.Debug("engine initialized",
		slog.String("dialect", e.adapter.DialectName()),
		slog.Int("workers", e.workers),
		slog.Bool("strict", e.strict))
	return e, nil
}

// Workers returns the effective worker count.
func (e *Engine) Workers() int { return e.workers }
