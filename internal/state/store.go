// Package state keeps a SQLite history of task executions so that
// operators can see which tasks ran for a run and how they ended.
package state

import (
	"context"
	"time"
)

// TaskRunStatus summarizes a task execution.
type TaskRunStatus string

// Task run statuses.
const (
	StatusPassed TaskRunStatus = "passed"
	StatusFailed TaskRunStatus = "failed"
	StatusError  TaskRunStatus = "error"
)

// StatusFor derives the status of a completed execution.
func StatusFor(failed int, err error) TaskRunStatus {
	switch {
	case err != nil:
		return StatusError
	case failed > 0:
		return StatusFailed
	default:
		return StatusPassed
	}
}

// TaskRun is one recorded execution of a task within a run.
type TaskRun struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id"`
	Task        string        `json:"task"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Total       int           `json:"total"`
	Failed      int           `json:"failed"`
	Status      TaskRunStatus `json:"status"`
}

// Duration is the wall time of the execution.
func (r TaskRun) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Store persists task run history.
type Store interface {
	RecordTaskRun(ctx context.Context, run TaskRun) (*TaskRun, error)
	ListTaskRuns(ctx context.Context, runID string, limit int) ([]TaskRun, error)
	Close() error
}
