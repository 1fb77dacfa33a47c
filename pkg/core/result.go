package core

import "time"

// RuleResult is the outcome of one rule application. It is created once,
// never mutated, and appended to the per-task result log.
type RuleResult struct {
	Task       string    `json:"task"`
	RuleID     string    `json:"rule_id"`
	Dataset    string    `json:"dataset"`
	Schema     string    `json:"schema"`
	Table      string    `json:"table"`
	Column     *string   `json:"column"`
	Success    bool      `json:"success"`
	Observed   any       `json:"observed"`
	Expected   any       `json:"expected"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	Kind       Kind      `json:"kind"`
	ExecutedAt time.Time `json:"executed_at"`
}

// ColumnName returns the column or "" when the result is table-level.
func (r RuleResult) ColumnName() string {
	if r.Column == nil {
		return ""
	}
	return *r.Column
}

// ResultKey identifies a rule application for deduplication.
type ResultKey struct {
	Task    string
	RuleID  string
	Dataset string
	Column  string
}

// Key returns the deduplication key of the result.
func (r RuleResult) Key() ResultKey {
	return ResultKey{Task: r.Task, RuleID: r.RuleID, Dataset: r.Dataset, Column: r.ColumnName()}
}

// NewResult returns a result pre-filled with the identity of the rule.
// Success, observations and message are left for the caller.
func NewResult(meta RuleMeta, column string) RuleResult {
	r := RuleResult{
		Task:     meta.Task,
		RuleID:   meta.RuleID,
		Dataset:  meta.Dataset(),
		Schema:   meta.Schema(),
		Table:    meta.TableName(),
		Severity: meta.Severity.OrDefault(),
		Kind:     meta.Kind,
	}
	if column != "" {
		c := column
		r.Column = &c
	}
	return r
}
