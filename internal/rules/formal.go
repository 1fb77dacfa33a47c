package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// =============================================================================
// not_null
// =============================================================================

// NotNullParams configures the not_null check.
type NotNullParams struct {
	Column         string `mapstructure:"column"`
	ScenarioColumn string `mapstructure:"scenario_column"`
}

// Validate implements Validator.
func (p NotNullParams) Validate() error {
	if err := validIdent("column", p.Column); err != nil {
		return err
	}
	return optionalIdent("scenario_column", p.ScenarioColumn)
}

// NotNull counts rows whose column is NULL or NaN.
func NotNull(p NotNullParams) core.RuleFactory {
	return factory(p, func(b base, p NotNullParams) (core.Rule, error) {
		return &notNullRule{base: b, p: p}, nil
	}, func(p NotNullParams) string { return p.Column })
}

type notNullRule struct {
	base
	p NotNullParams
}

func (r *notNullRule) Query(rc *core.RunContext) (core.Statement, error) {
	col := r.p.Column
	sql := fmt.Sprintf(
		"SELECT COUNT(*) AS total, SUM(CASE WHEN %s IS NULL OR %s THEN 1 ELSE 0 END) AS n_bad FROM %s%s",
		col, isNaN(rc, col), r.meta.Table, scenarioFilter(rc, r.p.ScenarioColumn, "WHERE"))
	return bindScenario(core.NewStatement(sql), rc, r.p.ScenarioColumn), nil
}

// isNaN returns a predicate that is true when col holds NaN. PostgreSQL
// orders NaN equal to itself, so the self-comparison only works elsewhere;
// there the float types are matched by name.
func isNaN(rc *core.RunContext, col string) string {
	if rc.Dialect() == "postgres" {
		return fmt.Sprintf("(pg_typeof(%[1]s) IN ('real'::regtype, 'double precision'::regtype, 'numeric'::regtype) AND CAST(%[1]s AS text) = 'NaN')", col)
	}
	return fmt.Sprintf("%[1]s <> %[1]s", col)
}

func (r *notNullRule) CountQuery(rc *core.RunContext) (core.Statement, bool) {
	return countStatement(r.meta.Table, r.p.ScenarioColumn, rc), true
}

func (r *notNullRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	total, bad := int64Or0(row, "total"), int64Or0(row, "n_bad")
	res := r.result()
	res.Success = r.withinTolerance(bad, total)
	res.Observed = bad
	res.Expected = 0
	res.Message = fmt.Sprintf("%d offending rows (NULL or NaN)", bad)
	return res
}

// =============================================================================
// range
// =============================================================================

// RangeParams configures the range check. At least one bound is required.
type RangeParams struct {
	Column         string   `mapstructure:"column"`
	Min            *float64 `mapstructure:"min"`
	Max            *float64 `mapstructure:"max"`
	ScenarioColumn string   `mapstructure:"scenario_column"`
}

// Validate implements Validator.
func (p RangeParams) Validate() error {
	if err := validIdent("column", p.Column); err != nil {
		return err
	}
	if p.Min == nil && p.Max == nil {
		return fmt.Errorf("range needs min or max")
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("min %g is greater than max %g", *p.Min, *p.Max)
	}
	return optionalIdent("scenario_column", p.ScenarioColumn)
}

// Range counts rows whose column lies outside [min, max].
func Range(p RangeParams) core.RuleFactory {
	return factory(p, func(b base, p RangeParams) (core.Rule, error) {
		return &rangeRule{base: b, p: p}, nil
	}, func(p RangeParams) string { return p.Column })
}

type rangeRule struct {
	base
	p RangeParams
}

func (r *rangeRule) Query(rc *core.RunContext) (core.Statement, error) {
	col := r.p.Column
	var conds []string
	stmt := core.Statement{}
	if r.p.Min != nil {
		conds = append(conds, col+" < CAST(:min_val AS DOUBLE PRECISION)")
		stmt = stmt.With("min_val", *r.p.Min)
	}
	if r.p.Max != nil {
		conds = append(conds, col+" > CAST(:max_val AS DOUBLE PRECISION)")
		stmt = stmt.With("max_val", *r.p.Max)
	}
	stmt.SQL = fmt.Sprintf(
		"SELECT COUNT(*) AS total, SUM(CASE WHEN %s THEN 1 ELSE 0 END) AS n_bad FROM %s%s",
		strings.Join(conds, " OR "), r.meta.Table, scenarioFilter(rc, r.p.ScenarioColumn, "WHERE"))
	return bindScenario(stmt, rc, r.p.ScenarioColumn), nil
}

func (r *rangeRule) CountQuery(rc *core.RunContext) (core.Statement, bool) {
	return countStatement(r.meta.Table, r.p.ScenarioColumn, rc), true
}

func (r *rangeRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	total, bad := int64Or0(row, "total"), int64Or0(row, "n_bad")
	res := r.result()
	res.Success = r.withinTolerance(bad, total)
	res.Observed = bad
	res.Expected = 0
	res.Message = fmt.Sprintf("%d rows outside range [%s, %s]", bad, bound(r.p.Min), bound(r.p.Max))
	return res
}

func bound(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

// =============================================================================
// row_count
// =============================================================================

// RowCountParams configures the row_count check.
type RowCountParams struct {
	ExpectedCount  int64  `mapstructure:"expected_count"`
	ScenarioColumn string `mapstructure:"scenario_column"`
}

// Validate implements Validator.
func (p RowCountParams) Validate() error {
	if p.ExpectedCount < 0 {
		return fmt.Errorf("expected_count must be >= 0, got %d", p.ExpectedCount)
	}
	return optionalIdent("scenario_column", p.ScenarioColumn)
}

// RowCount compares the table's row count with an expected count. Tolerance
// is relative to the expected count. The rule has no empty-table probe: an
// empty table is a real deviation here.
func RowCount(p RowCountParams) core.RuleFactory {
	return factory(p, func(b base, p RowCountParams) (core.Rule, error) {
		return &rowCountRule{base: b, p: p}, nil
	}, func(RowCountParams) string { return "" })
}

type rowCountRule struct {
	base
	p RowCountParams
}

func (r *rowCountRule) Query(rc *core.RunContext) (core.Statement, error) {
	sql := "SELECT COUNT(*) AS actual_count FROM " + r.meta.Table + scenarioFilter(rc, r.p.ScenarioColumn, "WHERE")
	return bindScenario(core.NewStatement(sql), rc, r.p.ScenarioColumn), nil
}

func (r *rowCountRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	actual := int64Or0(row, "actual_count")
	diff := math.Abs(float64(actual - r.p.ExpectedCount))
	res := r.result()
	res.Success = diff <= r.meta.Tolerance*float64(r.p.ExpectedCount)
	res.Observed = actual
	res.Expected = r.p.ExpectedCount
	res.Message = fmt.Sprintf("Expected %d rows, found %d", r.p.ExpectedCount, actual)
	return res
}

// =============================================================================
// value_set
// =============================================================================

// ValueSetParams configures the value_set check.
type ValueSetParams struct {
	Column         string `mapstructure:"column"`
	Allowed        []any  `mapstructure:"allowed"`
	ScenarioColumn string `mapstructure:"scenario_column"`
}

// Validate implements Validator.
func (p ValueSetParams) Validate() error {
	if err := validIdent("column", p.Column); err != nil {
		return err
	}
	if len(p.Allowed) == 0 {
		return fmt.Errorf("allowed must list at least one value")
	}
	return optionalIdent("scenario_column", p.ScenarioColumn)
}

// ValueSet counts rows whose column is NULL or not in the allowed set.
func ValueSet(p ValueSetParams) core.RuleFactory {
	return factory(p, func(b base, p ValueSetParams) (core.Rule, error) {
		return &valueSetRule{base: b, p: p}, nil
	}, func(p ValueSetParams) string { return p.Column })
}

type valueSetRule struct {
	base
	p ValueSetParams
}

func (r *valueSetRule) Query(rc *core.RunContext) (core.Statement, error) {
	col := r.p.Column
	stmt := core.Statement{}
	names := make([]string, len(r.p.Allowed))
	for i, v := range r.p.Allowed {
		name := fmt.Sprintf("v%d", i)
		names[i] = ":" + name
		stmt = stmt.With(name, v)
	}
	invalid := fmt.Sprintf("%s IS NULL OR %s NOT IN (%s)", col, col, strings.Join(names, ", "))
	stmt.SQL = fmt.Sprintf(
		"SELECT COUNT(*) AS total_rows, SUM(CASE WHEN %s THEN 1 ELSE 0 END) AS invalid_values, "+
			"MIN(CASE WHEN %s NOT IN (%s) THEN %s END) AS example_invalid FROM %s%s",
		invalid, col, strings.Join(names, ", "), col, r.meta.Table, scenarioFilter(rc, r.p.ScenarioColumn, "WHERE"))
	return bindScenario(stmt, rc, r.p.ScenarioColumn), nil
}

func (r *valueSetRule) CountQuery(rc *core.RunContext) (core.Statement, bool) {
	return countStatement(r.meta.Table, r.p.ScenarioColumn, rc), true
}

func (r *valueSetRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	total, bad := int64Or0(row, "total_rows"), int64Or0(row, "invalid_values")
	res := r.result()
	res.Success = r.withinTolerance(bad, total)
	res.Observed = bad
	res.Expected = 0
	if bad == 0 {
		res.Message = fmt.Sprintf("All %d values are in expected set %v", total, r.p.Allowed)
		return res
	}
	res.Message = fmt.Sprintf("%d invalid values found", bad)
	if ex, ok := row.String("example_invalid"); ok {
		res.Message += fmt.Sprintf(" (e.g. %q)", ex)
	}
	return res
}

// =============================================================================
// referential_integrity
// =============================================================================

// ReferentialIntegrityParams configures the referential_integrity check.
type ReferentialIntegrityParams struct {
	Column          string `mapstructure:"column"`
	ReferenceTable  string `mapstructure:"reference_table"`
	ReferenceColumn string `mapstructure:"reference_column"`
	ScenarioColumn  string `mapstructure:"scenario_column"`
}

// Validate implements Validator.
func (p ReferentialIntegrityParams) Validate() error {
	if err := validIdent("column", p.Column); err != nil {
		return err
	}
	if err := validIdent("reference_table", p.ReferenceTable); err != nil {
		return err
	}
	if err := validIdent("reference_column", p.ReferenceColumn); err != nil {
		return err
	}
	return optionalIdent("scenario_column", p.ScenarioColumn)
}

// ReferentialIntegrity counts non-NULL references without a matching row in
// the reference table.
func ReferentialIntegrity(p ReferentialIntegrityParams) core.RuleFactory {
	return factory(p, func(b base, p ReferentialIntegrityParams) (core.Rule, error) {
		return &refIntegrityRule{base: b, p: p}, nil
	}, func(p ReferentialIntegrityParams) string { return p.Column })
}

type refIntegrityRule struct {
	base
	p ReferentialIntegrityParams
}

func (r *refIntegrityRule) Query(rc *core.RunContext) (core.Statement, error) {
	scn := ""
	if r.p.ScenarioColumn != "" {
		scn = scenarioFilter(rc, "child."+r.p.ScenarioColumn, "AND")
	}
	sql := fmt.Sprintf(`SELECT
	COUNT(*) AS total_references,
	SUM(CASE WHEN NOT EXISTS (
		SELECT 1 FROM %s AS parent WHERE parent.%s = child.%s
	) THEN 1 ELSE 0 END) AS orphaned_references
FROM %s AS child
WHERE child.%s IS NOT NULL%s`,
		r.p.ReferenceTable, r.p.ReferenceColumn, r.p.Column, r.meta.Table, r.p.Column, scn)
	return bindScenario(core.NewStatement(sql), rc, r.p.ScenarioColumn), nil
}

func (r *refIntegrityRule) CountQuery(rc *core.RunContext) (core.Statement, bool) {
	return countStatement(r.meta.Table, r.p.ScenarioColumn, rc), true
}

func (r *refIntegrityRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	total, bad := int64Or0(row, "total_references"), int64Or0(row, "orphaned_references")
	res := r.result()
	res.Success = r.withinTolerance(bad, total)
	res.Observed = bad
	res.Expected = 0
	if bad == 0 {
		res.Message = fmt.Sprintf("All %d references in %s have valid matches in %s.%s",
			total, r.p.Column, r.p.ReferenceTable, r.p.ReferenceColumn)
	} else {
		res.Message = fmt.Sprintf("%d orphaned references found in %s (out of %d total non-null references)",
			bad, r.p.Column, total)
	}
	return res
}

// =============================================================================
// balance
// =============================================================================

// BalanceParams configures the balance check. Both sides are aggregate SQL
// expressions evaluated over the table, e.g. "SUM(production)".
type BalanceParams struct {
	LeftExpr       string `mapstructure:"left_expr"`
	RightExpr      string `mapstructure:"right_expr"`
	ScenarioColumn string `mapstructure:"scenario_column"`
}

// Validate implements Validator.
func (p BalanceParams) Validate() error {
	if err := validFragment("left_expr", p.LeftExpr); err != nil {
		return err
	}
	if err := validFragment("right_expr", p.RightExpr); err != nil {
		return err
	}
	return optionalIdent("scenario_column", p.ScenarioColumn)
}

// Balance passes when |left - right| <= tolerance (absolute).
func Balance(p BalanceParams) core.RuleFactory {
	return factory(p, func(b base, p BalanceParams) (core.Rule, error) {
		return &balanceRule{base: b, p: p}, nil
	}, func(BalanceParams) string { return "" })
}

type balanceRule struct {
	base
	p BalanceParams
}

func (r *balanceRule) Query(rc *core.RunContext) (core.Statement, error) {
	sql := fmt.Sprintf("SELECT (%s) AS left_value, (%s) AS right_value FROM %s%s",
		r.p.LeftExpr, r.p.RightExpr, r.meta.Table, scenarioFilter(rc, r.p.ScenarioColumn, "WHERE"))
	return bindScenario(core.NewStatement(sql), rc, r.p.ScenarioColumn), nil
}

func (r *balanceRule) CountQuery(rc *core.RunContext) (core.Statement, bool) {
	return countStatement(r.meta.Table, r.p.ScenarioColumn, rc), true
}

func (r *balanceRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	left, _ := row.Float64("left_value")
	right, _ := row.Float64("right_value")
	diff := left - right
	res := r.result()
	res.Success = math.Abs(diff) <= r.meta.Tolerance
	res.Observed = diff
	res.Expected = 0.0
	res.Message = fmt.Sprintf("|diff| = %g (tolerance %g)", math.Abs(diff), r.meta.Tolerance)
	return res
}

// =============================================================================
// array_cardinality
// =============================================================================

// ArrayCardinalityParams configures the array_cardinality check.
// LengthFunction defaults to "cardinality" (PostgreSQL); use "len" for
// DuckDB lists or "json_array_length" for JSON arrays in SQLite.
type ArrayCardinalityParams struct {
	Column         string `mapstructure:"column"`
	ExpectedLength int64  `mapstructure:"expected_length"`
	LengthFunction string `mapstructure:"length_function"`
}

// Validate implements Validator.
func (p ArrayCardinalityParams) Validate() error {
	if err := validIdent("column", p.Column); err != nil {
		return err
	}
	if p.ExpectedLength <= 0 {
		return fmt.Errorf("expected_length must be > 0, got %d", p.ExpectedLength)
	}
	return optionalIdent("length_function", p.LengthFunction)
}

// ArrayCardinality counts NULL arrays and arrays of the wrong length.
func ArrayCardinality(p ArrayCardinalityParams) core.RuleFactory {
	if p.LengthFunction == "" {
		p.LengthFunction = "cardinality"
	}
	return factory(p, func(b base, p ArrayCardinalityParams) (core.Rule, error) {
		return &arrayCardinalityRule{base: b, p: p}, nil
	}, func(p ArrayCardinalityParams) string { return p.Column })
}

type arrayCardinalityRule struct {
	base
	p ArrayCardinalityParams
}

func (r *arrayCardinalityRule) Query(_ *core.RunContext) (core.Statement, error) {
	length := fmt.Sprintf("%s(%s)", r.p.LengthFunction, r.p.Column)
	sql := fmt.Sprintf(`SELECT
	COUNT(*) AS total_rows,
	SUM(CASE WHEN %[1]s IS NULL THEN 1 ELSE 0 END) AS null_arrays,
	SUM(CASE WHEN %[1]s IS NOT NULL AND %[2]s <> :expected_length THEN 1 ELSE 0 END) AS wrong_length,
	MIN(%[2]s) AS min_length,
	MAX(%[2]s) AS max_length
FROM %[3]s`, r.p.Column, length, r.meta.Table)
	return core.NewStatement(sql).With("expected_length", r.p.ExpectedLength), nil
}

func (r *arrayCardinalityRule) CountQuery(rc *core.RunContext) (core.Statement, bool) {
	return countStatement(r.meta.Table, "", rc), true
}

func (r *arrayCardinalityRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	total := int64Or0(row, "total_rows")
	nulls, wrong := int64Or0(row, "null_arrays"), int64Or0(row, "wrong_length")
	bad := nulls + wrong
	res := r.result()
	res.Success = r.withinTolerance(bad, total)
	res.Observed = bad
	res.Expected = 0
	if bad == 0 {
		res.Message = fmt.Sprintf("All %d arrays have correct length of %d", total, r.p.ExpectedLength)
		return res
	}
	var problems []string
	if wrong > 0 {
		problems = append(problems, fmt.Sprintf("%d arrays with wrong length", wrong))
	}
	if nulls > 0 {
		problems = append(problems, fmt.Sprintf("%d NULL arrays", nulls))
	}
	details := fmt.Sprintf("expected %d", r.p.ExpectedLength)
	if lo, ok := row.Int64("min_length"); ok {
		hi, _ := row.Int64("max_length")
		details += fmt.Sprintf(", range %d-%d", lo, hi)
	}
	res.Message = strings.Join(problems, "; ") + " (" + details + ")"
	return res
}
