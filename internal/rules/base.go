// Package rules implements the built-in data-quality check kinds.
//
// Each kind has a params struct with a Validate method and a constructor
// returning a core.RuleFactory. Kinds maps manifest check names to
// constructors that decode raw params with mapstructure.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapcheck/pkg/core"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// base carries the identity shared by every rule instance.
type base struct {
	meta   core.RuleMeta
	column string
}

func newBase(meta core.RuleMeta, column string) (base, error) {
	if err := validIdent("table", meta.Table); err != nil {
		return base{}, err
	}
	if meta.Tolerance < 0 {
		return base{}, fmt.Errorf("tolerance must be >= 0, got %g", meta.Tolerance)
	}
	meta.Severity = meta.Severity.OrDefault()
	if meta.Kind == "" {
		meta.Kind = core.KindFormal
	}
	return base{meta: meta, column: column}, nil
}

func (b base) Meta() core.RuleMeta { return b.meta }

func (b base) Column() string { return b.column }

func (b base) result() core.RuleResult {
	return core.NewResult(b.meta, b.column)
}

// allowed returns how many offending rows pass under the rule's tolerance.
// Tolerances >= 1 are absolute counts, 0 < t < 1 a fraction of total.
func (b base) allowed(total int64) float64 {
	t := b.meta.Tolerance
	switch {
	case t <= 0:
		return 0
	case t < 1:
		return t * float64(total)
	default:
		return t
	}
}

func (b base) withinTolerance(bad, total int64) bool {
	return float64(bad) <= b.allowed(total)
}

// scenarioFilter returns " WHERE <col> = :scenario" (or with AND) when the
// run has a scenario and the rule declares a scenario column.
func scenarioFilter(rc *core.RunContext, column, prefix string) string {
	if column == "" || rc == nil || rc.Scenario() == "" {
		return ""
	}
	return fmt.Sprintf(" %s %s = :scenario", prefix, column)
}

func bindScenario(stmt core.Statement, rc *core.RunContext, column string) core.Statement {
	if column == "" || rc == nil || rc.Scenario() == "" {
		return stmt
	}
	return stmt.With("scenario", rc.Scenario())
}

// countStatement is the empty-table probe shared by row-scanning rules.
func countStatement(table, scenarioColumn string, rc *core.RunContext) core.Statement {
	sql := "SELECT COUNT(*) AS total_count FROM " + table + scenarioFilter(rc, scenarioColumn, "WHERE")
	return bindScenario(core.NewStatement(sql), rc, scenarioColumn)
}

func validIdent(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !identPattern.MatchString(value) {
		return fmt.Errorf("%s %q is not a valid identifier", field, value)
	}
	return nil
}

func optionalIdent(field, value string) error {
	if value == "" {
		return nil
	}
	return validIdent(field, value)
}

// validFragment guards SQL fragments taken verbatim from a manifest.
func validFragment(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if strings.Contains(value, ";") || strings.Contains(value, "--") {
		return fmt.Errorf("%s must be a single expression", field)
	}
	return nil
}

func validColumns(cols []string) error {
	var errs []error
	for _, c := range cols {
		if err := validIdent("column", c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func int64Or0(row core.Row, key string) int64 {
	v, _ := row.Int64(key)
	return v
}
