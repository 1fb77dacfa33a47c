package core

import "strings"

// RuleMeta carries the identity and reporting attributes of a rule.
// Identity is (Task, RuleID) for registration; one registration may target
// several tables, each producing its own rule instance.
type RuleMeta struct {
	Task      string
	RuleID    string
	Table     string
	Kind      Kind
	Severity  Severity
	Tolerance float64
}

// Schema returns the schema part of a schema-qualified table, or "".
func (m RuleMeta) Schema() string {
	if i := strings.LastIndexByte(m.Table, '.'); i >= 0 {
		return m.Table[:i]
	}
	return ""
}

// TableName returns the unqualified table name.
func (m RuleMeta) TableName() string {
	if i := strings.LastIndexByte(m.Table, '.'); i >= 0 {
		return m.Table[i+1:]
	}
	return m.Table
}

// Dataset returns the name results are reported under.
func (m RuleMeta) Dataset() string {
	return m.Table
}

// Rule is the common contract of all data-quality checks.
// Concrete rules additionally implement QueryRule or RowSetRule.
type Rule interface {
	Meta() RuleMeta
	// Column returns the primary column the rule inspects, or "".
	Column() string
}

// QueryRule runs one query whose single summary row is evaluated.
type QueryRule interface {
	Rule
	Query(rc *RunContext) (Statement, error)
	Evaluate(row Row, rc *RunContext) RuleResult
}

// RowSetRule fetches a full result set and evaluates it in process.
type RowSetRule interface {
	Rule
	Query(rc *RunContext) (Statement, error)
	EvaluateRows(rows []Row, rc *RunContext) RuleResult
	// RowLimit caps the number of fetched rows. Zero means unlimited.
	RowLimit() int
}

// CountingRule supplies the row-count probe used for the empty-table
// short circuit. Returning false opts the rule out of the probe.
type CountingRule interface {
	CountQuery(rc *RunContext) (Statement, bool)
}

// RuleFactory builds a rule instance for the given metadata.
// Factories validate their parameters and fail with a descriptive error.
type RuleFactory func(meta RuleMeta) (Rule, error)
