package rules

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	lsstarlark "github.com/leapstack-labs/leapcheck/internal/starlark"
	"github.com/leapstack-labs/leapcheck/pkg/core"
	"go.starlark.net/starlark"
)

// celCostLimit bounds the work a single expression evaluation may do.
const celCostLimit = 1_000_000

// selectRows builds the row-set query shared by expression and script rules.
func selectRows(table string, columns []string, scenarioColumn string, rc *core.RunContext) core.Statement {
	cols := "*"
	if len(columns) > 0 {
		cols = strings.Join(columns, ", ")
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s", cols, table, scenarioFilter(rc, scenarioColumn, "WHERE"))
	return bindScenario(core.NewStatement(sql), rc, scenarioColumn)
}

// =============================================================================
// expression
// =============================================================================

// ExpressionParams configures the expression check. Expression is a CEL
// predicate over the map variable "row"; rows where it is not true count
// as offending.
type ExpressionParams struct {
	Expression     string   `mapstructure:"expression"`
	Columns        []string `mapstructure:"columns"`
	ScenarioColumn string   `mapstructure:"scenario_column"`
	Limit          int      `mapstructure:"limit"`
}

// Validate implements Validator.
func (p ExpressionParams) Validate() error {
	if strings.TrimSpace(p.Expression) == "" {
		return fmt.Errorf("expression is required")
	}
	if p.Limit < 0 {
		return fmt.Errorf("limit must be >= 0")
	}
	if err := validColumns(p.Columns); err != nil {
		return err
	}
	return optionalIdent("scenario_column", p.ScenarioColumn)
}

// Expression evaluates a CEL predicate against every fetched row.
// The expression is compiled once, when the rule is built.
func Expression(p ExpressionParams) core.RuleFactory {
	return factory(p, func(b base, p ExpressionParams) (core.Rule, error) {
		env, err := cel.NewEnv(cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)))
		if err != nil {
			return nil, fmt.Errorf("failed to create CEL environment: %w", err)
		}
		ast, issues := env.Compile(p.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile error: %w", issues.Err())
		}
		prg, err := env.Program(ast, cel.CostLimit(celCostLimit))
		if err != nil {
			return nil, fmt.Errorf("program creation error: %w", err)
		}
		return &expressionRule{base: b, p: p, prg: prg}, nil
	}, func(ExpressionParams) string { return "" })
}

type expressionRule struct {
	base
	p   ExpressionParams
	prg cel.Program
}

func (r *expressionRule) Query(rc *core.RunContext) (core.Statement, error) {
	return selectRows(r.meta.Table, r.p.Columns, r.p.ScenarioColumn, rc), nil
}

func (r *expressionRule) RowLimit() int { return r.p.Limit }

func (r *expressionRule) EvaluateRows(rows []core.Row, _ *core.RunContext) core.RuleResult {
	var (
		bad      int64
		firstErr error
	)
	for _, row := range rows {
		out, _, err := r.prg.Eval(map[string]any{"row": map[string]any(row)})
		if err != nil {
			bad++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			bad++
		}
	}

	total := int64(len(rows))
	res := r.result()
	res.Success = r.withinTolerance(bad, total)
	res.Observed = bad
	res.Expected = 0
	res.Message = fmt.Sprintf("%d of %d rows failed expression %q", bad, total, r.p.Expression)
	if firstErr != nil {
		res.Message += fmt.Sprintf(" (first error: %v)", firstErr)
	}
	return res
}

// =============================================================================
// script
// =============================================================================

// ScriptParams configures the script check. Script is Starlark source that
// defines check(rows) returning a dict with "success" and optionally
// "observed", "expected" and "message". The globals "dataset" and
// "tolerance" are predeclared.
type ScriptParams struct {
	Script         string   `mapstructure:"script"`
	Columns        []string `mapstructure:"columns"`
	ScenarioColumn string   `mapstructure:"scenario_column"`
	Limit          int      `mapstructure:"limit"`
}

// Validate implements Validator.
func (p ScriptParams) Validate() error {
	if strings.TrimSpace(p.Script) == "" {
		return fmt.Errorf("script is required")
	}
	if p.Limit < 0 {
		return fmt.Errorf("limit must be >= 0")
	}
	if err := validColumns(p.Columns); err != nil {
		return err
	}
	return optionalIdent("scenario_column", p.ScenarioColumn)
}

// Script runs a Starlark check over the fetched rows.
func Script(p ScriptParams) core.RuleFactory {
	return factory(p, func(b base, p ScriptParams) (core.Rule, error) {
		predeclared := starlark.StringDict{
			"dataset":   starlark.String(b.meta.Dataset()),
			"tolerance": starlark.Float(b.meta.Tolerance),
		}
		name := fmt.Sprintf("%s/%s.star", b.meta.Task, b.meta.RuleID)
		script, err := lsstarlark.Compile(name, p.Script, predeclared)
		if err != nil {
			return nil, err
		}
		return &scriptRule{base: b, p: p, script: script}, nil
	}, func(ScriptParams) string { return "" })
}

type scriptRule struct {
	base
	p      ScriptParams
	script *lsstarlark.Script
}

func (r *scriptRule) Query(rc *core.RunContext) (core.Statement, error) {
	return selectRows(r.meta.Table, r.p.Columns, r.p.ScenarioColumn, rc), nil
}

func (r *scriptRule) RowLimit() int { return r.p.Limit }

func (r *scriptRule) EvaluateRows(rows []core.Row, _ *core.RunContext) core.RuleResult {
	res := r.result()
	in := make([]map[string]any, len(rows))
	for i, row := range rows {
		in[i] = row
	}

	out, err := r.script.Call(in)
	if err != nil {
		res.Success = false
		res.Severity = core.SeverityError
		res.Message = err.Error()
		return res
	}

	success, ok := out["success"].(bool)
	if !ok {
		res.Success = false
		res.Severity = core.SeverityError
		res.Message = fmt.Sprintf("script %s: result has no boolean \"success\"", r.script.Name())
		return res
	}
	res.Success = success
	res.Observed = out["observed"]
	res.Expected = out["expected"]
	if msg, ok := out["message"].(string); ok {
		res.Message = msg
	} else if success {
		res.Message = fmt.Sprintf("script passed on %d rows", len(rows))
	} else {
		res.Message = fmt.Sprintf("script failed on %d rows", len(rows))
	}
	return res
}
