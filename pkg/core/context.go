package core

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
)

// DefaultOutputRoot is used when a RunContext is created without an output root.
const DefaultOutputRoot = "./validation_runs"

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// RunContext identifies one validation run. It is immutable once created and
// shared read-only by all concurrently executing rules.
type RunContext struct {
	runID      string
	outputRoot string
	scenario   string
	dialect    string
	extra      map[string]any
}

// RunOption configures a RunContext at construction time.
type RunOption func(*RunContext)

// WithScenario restricts scenario-aware rules to the given scenario.
func WithScenario(scenario string) RunOption {
	return func(rc *RunContext) { rc.scenario = scenario }
}

// WithDialect records the SQL dialect of the store the run validates.
// Rules use it where portable SQL is not enough.
func WithDialect(dialect string) RunOption {
	return func(rc *RunContext) { rc.dialect = dialect }
}

// WithExtra attaches free-form metadata. The map is copied.
func WithExtra(extra map[string]any) RunOption {
	return func(rc *RunContext) { rc.extra = maps.Clone(extra) }
}

// NewRunContext creates a RunContext. The run ID becomes a directory name,
// so it must not contain path separators.
func NewRunContext(runID, outputRoot string, opts ...RunOption) (*RunContext, error) {
	if !runIDPattern.MatchString(runID) {
		return nil, fmt.Errorf("invalid run id %q: must match %s", runID, runIDPattern)
	}
	if outputRoot == "" {
		outputRoot = DefaultOutputRoot
	}
	rc := &RunContext{runID: runID, outputRoot: outputRoot}
	for _, opt := range opts {
		opt(rc)
	}
	return rc, nil
}

// RunID returns the run identifier.
func (rc *RunContext) RunID() string { return rc.runID }

// OutputRoot returns the root directory for run artifacts.
func (rc *RunContext) OutputRoot() string { return rc.outputRoot }

// Scenario returns the scenario filter, or "" when unset.
func (rc *RunContext) Scenario() string { return rc.scenario }

// Dialect returns the store dialect, or "" when unknown.
func (rc *RunContext) Dialect() string { return rc.dialect }

// Extra returns a copy of the free-form metadata.
func (rc *RunContext) Extra() map[string]any { return maps.Clone(rc.extra) }

// RunDir returns <output_root>/<run_id>.
func (rc *RunContext) RunDir() string { return filepath.Join(rc.outputRoot, rc.runID) }

// TasksDir returns <output_root>/<run_id>/tasks.
func (rc *RunContext) TasksDir() string { return filepath.Join(rc.RunDir(), "tasks") }

// FinalDir returns <output_root>/<run_id>/final.
func (rc *RunContext) FinalDir() string { return filepath.Join(rc.RunDir(), "final") }
