package core

import (
	"errors"
	"fmt"
)

// ErrNoRulesForTask is returned in strict mode when a task has no rules.
var ErrNoRulesForTask = errors.New("no rules registered for task")

// ErrRunNotFound is returned when a run directory does not exist.
var ErrRunNotFound = errors.New("run not found")

// RuleExecutionError describes a rule whose query or evaluation failed.
// It is rendered into a failed RuleResult, never propagated.
type RuleExecutionError struct {
	Task     string
	RuleID   string
	Attempts int
	Err      error
}

func (e *RuleExecutionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("rule execution failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("rule execution failed: %v", e.Err)
}

func (e *RuleExecutionError) Unwrap() error { return e.Err }

// TransientStoreError marks a store error that may succeed on retry.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// DuplicateRuleError is returned when (task, rule_id) is registered twice.
type DuplicateRuleError struct {
	Task   string
	RuleID string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("rule %q already registered for task %q", e.RuleID, e.Task)
}

// InvalidRuleError is returned when a rule's identity or parameters are invalid.
type InvalidRuleError struct {
	Task   string
	RuleID string
	Err    error
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule %q in task %q: %v", e.RuleID, e.Task, e.Err)
}

func (e *InvalidRuleError) Unwrap() error { return e.Err }

// AggregationInputError describes a result log or line that was skipped
// during aggregation. Line is zero when the whole file was unreadable.
type AggregationInputError struct {
	Path string
	Line int
	Err  error
}

func (e *AggregationInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *AggregationInputError) Unwrap() error { return e.Err }
