package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// =============================================================================
// data_type
// =============================================================================

// typeFamilies maps a logical type to the catalog spellings that satisfy it.
var typeFamilies = map[string][]string{
	"integer":   {"integer", "int4", "int", "bigint", "int8", "smallint", "int2"},
	"text":      {"text", "character varying", "varchar", "character", "char"},
	"numeric":   {"numeric", "decimal", "real", "double precision", "double", "float4", "float8"},
	"boolean":   {"boolean", "bool"},
	"timestamp": {"timestamp without time zone", "timestamp with time zone", "timestamptz", "timestamp"},
	"date":      {"date"},
	"uuid":      {"uuid"},
	"geometry":  {"geometry", "geography"},
	"array":     {"array", "_int4", "_text", "_numeric", "_float8"},
}

// DataTypeParams configures the data_type check.
type DataTypeParams struct {
	Column        string `mapstructure:"column"`
	ExpectedType  string `mapstructure:"expected_type"`
	DefaultSchema string `mapstructure:"default_schema"`
}

// Validate implements Validator.
func (p DataTypeParams) Validate() error {
	if err := validIdent("column", p.Column); err != nil {
		return err
	}
	if strings.TrimSpace(p.ExpectedType) == "" {
		return fmt.Errorf("expected_type is required")
	}
	return optionalIdent("default_schema", p.DefaultSchema)
}

// DataType compares a column's catalog type with the expected type family.
// It inspects information_schema, so it skips the empty-table probe.
func DataType(p DataTypeParams) core.RuleFactory {
	if p.DefaultSchema == "" {
		p.DefaultSchema = "public"
	}
	p.ExpectedType = strings.ToLower(strings.TrimSpace(p.ExpectedType))
	return factory(p, func(b base, p DataTypeParams) (core.Rule, error) {
		return &dataTypeRule{base: b, p: p}, nil
	}, func(p DataTypeParams) string { return p.Column })
}

type dataTypeRule struct {
	base
	p DataTypeParams
}

func (r *dataTypeRule) Query(_ *core.RunContext) (core.Statement, error) {
	schema := r.meta.Schema()
	if schema == "" {
		schema = r.p.DefaultSchema
	}
	return core.NewStatement(`SELECT column_name, data_type, udt_name
FROM information_schema.columns
WHERE table_schema = :schema AND table_name = :table AND column_name = :column`).
		With("schema", schema).
		With("table", r.meta.TableName()).
		With("column", r.p.Column), nil
}

func (r *dataTypeRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	res := r.result()
	res.Expected = r.p.ExpectedType
	if len(row) == 0 {
		res.Success = false
		res.Severity = core.SeverityError
		res.Message = fmt.Sprintf("Column %q not found", r.p.Column)
		return res
	}

	actual, _ := row.String("data_type")
	udt, _ := row.String("udt_name")
	actual, udt = strings.ToLower(actual), strings.ToLower(udt)

	accepted, ok := typeFamilies[r.p.ExpectedType]
	if !ok {
		accepted = []string{r.p.ExpectedType}
	}
	res.Success = slices.Contains(accepted, actual) || slices.Contains(accepted, udt)
	res.Observed = actual
	res.Message = fmt.Sprintf("Column %q has type %q (udt: %q), expected: %s", r.p.Column, actual, udt, r.p.ExpectedType)
	return res
}

// =============================================================================
// srid
// =============================================================================

// SRIDParams configures the srid check (PostGIS). Without ExpectedSRID the
// table must use exactly one SRID and it must not be 0.
type SRIDParams struct {
	GeometryColumn string `mapstructure:"geometry_column"`
	ExpectedSRID   int64  `mapstructure:"expected_srid"`
}

// Validate implements Validator.
func (p SRIDParams) Validate() error {
	if err := validIdent("geometry_column", p.GeometryColumn); err != nil {
		return err
	}
	if p.ExpectedSRID < 0 {
		return fmt.Errorf("expected_srid must be >= 0, got %d", p.ExpectedSRID)
	}
	return nil
}

// SRID checks the spatial reference of a geometry column.
func SRID(p SRIDParams) core.RuleFactory {
	return factory(p, func(b base, p SRIDParams) (core.Rule, error) {
		return &sridRule{base: b, p: p}, nil
	}, func(p SRIDParams) string { return p.GeometryColumn })
}

type sridRule struct {
	base
	p SRIDParams
}

func (r *sridRule) Query(_ *core.RunContext) (core.Statement, error) {
	g := r.p.GeometryColumn
	sql := fmt.Sprintf(`SELECT
	COUNT(*) AS total,
	COUNT(DISTINCT ST_SRID(%[1]s)) AS srids,
	SUM(CASE WHEN ST_SRID(%[1]s) = 0 THEN 1 ELSE 0 END) AS srid_zero,
	SUM(CASE WHEN ST_SRID(%[1]s) <> :expected_srid THEN 1 ELSE 0 END) AS wrong_srid
FROM %[2]s
WHERE %[1]s IS NOT NULL`, g, r.meta.Table)
	return core.NewStatement(sql).With("expected_srid", r.p.ExpectedSRID), nil
}

func (r *sridRule) CountQuery(rc *core.RunContext) (core.Statement, bool) {
	return countStatement(r.meta.Table, "", rc), true
}

func (r *sridRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	total := int64Or0(row, "total")
	srids, zero, wrong := int64Or0(row, "srids"), int64Or0(row, "srid_zero"), int64Or0(row, "wrong_srid")
	res := r.result()
	if r.p.ExpectedSRID > 0 {
		res.Success = r.withinTolerance(wrong, total)
		res.Observed = wrong
		res.Expected = 0
		res.Message = fmt.Sprintf("%d geometries with SRID other than %d", wrong, r.p.ExpectedSRID)
		return res
	}
	res.Success = srids == 1 && zero == 0
	res.Observed = srids
	res.Expected = 1
	res.Message = fmt.Sprintf("%d distinct SRIDs, %d geometries with SRID 0; expected exactly one non-zero SRID", srids, zero)
	return res
}

// =============================================================================
// geometry_valid
// =============================================================================

// GeometryValidParams configures the geometry_valid check (PostGIS).
type GeometryValidParams struct {
	GeometryColumn string `mapstructure:"geometry_column"`
}

// Validate implements Validator.
func (p GeometryValidParams) Validate() error {
	return validIdent("geometry_column", p.GeometryColumn)
}

// GeometryValid counts geometries rejected by ST_IsValid.
func GeometryValid(p GeometryValidParams) core.RuleFactory {
	return factory(p, func(b base, p GeometryValidParams) (core.Rule, error) {
		return &geometryValidRule{base: b, p: p}, nil
	}, func(p GeometryValidParams) string { return p.GeometryColumn })
}

type geometryValidRule struct {
	base
	p GeometryValidParams
}

func (r *geometryValidRule) Query(_ *core.RunContext) (core.Statement, error) {
	g := r.p.GeometryColumn
	return core.NewStatement(fmt.Sprintf(
		"SELECT COUNT(*) AS total, SUM(CASE WHEN %[1]s IS NOT NULL AND NOT ST_IsValid(%[1]s) THEN 1 ELSE 0 END) AS invalid FROM %[2]s",
		g, r.meta.Table)), nil
}

func (r *geometryValidRule) CountQuery(rc *core.RunContext) (core.Statement, bool) {
	return countStatement(r.meta.Table, "", rc), true
}

func (r *geometryValidRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	total, bad := int64Or0(row, "total"), int64Or0(row, "invalid")
	res := r.result()
	res.Success = r.withinTolerance(bad, total)
	res.Observed = bad
	res.Expected = 0
	res.Message = fmt.Sprintf("%d of %d geometries are invalid", bad, total)
	return res
}

// =============================================================================
// row_count_comparison
// =============================================================================

// RowCountComparisonParams configures the row_count_comparison check.
// Every group of the table must hold as many rows as the reference table
// has (after ReferenceFilter).
type RowCountComparisonParams struct {
	ReferenceTable  string   `mapstructure:"reference_table"`
	ReferenceFilter string   `mapstructure:"reference_filter"`
	GroupColumns    []string `mapstructure:"group_columns"`
}

// Validate implements Validator.
func (p RowCountComparisonParams) Validate() error {
	if err := validIdent("reference_table", p.ReferenceTable); err != nil {
		return err
	}
	if len(p.GroupColumns) == 0 {
		return fmt.Errorf("group_columns must list at least one column")
	}
	if err := validColumns(p.GroupColumns); err != nil {
		return err
	}
	if p.ReferenceFilter != "" {
		return validFragment("reference_filter", p.ReferenceFilter)
	}
	return nil
}

// RowCountComparison compares grouped row counts with a reference count.
func RowCountComparison(p RowCountComparisonParams) core.RuleFactory {
	return factory(p, func(b base, p RowCountComparisonParams) (core.Rule, error) {
		return &rowCountComparisonRule{base: b, p: p}, nil
	}, func(RowCountComparisonParams) string { return "" })
}

type rowCountComparisonRule struct {
	base
	p RowCountComparisonParams
}

func (r *rowCountComparisonRule) Query(_ *core.RunContext) (core.Statement, error) {
	filter := r.p.ReferenceFilter
	if filter == "" {
		filter = "1 = 1"
	}
	groups := strings.Join(r.p.GroupColumns, ", ")
	sql := fmt.Sprintf(`WITH reference_count AS (
	SELECT COUNT(*) AS ref_count FROM %s WHERE %s
),
grouped_counts AS (
	SELECT %s, COUNT(*) AS group_count FROM %s GROUP BY %s
)
SELECT
	r.ref_count AS ref_count,
	COUNT(g.group_count) AS total_groups,
	SUM(CASE WHEN g.group_count <> r.ref_count THEN 1 ELSE 0 END) AS mismatching_groups,
	MIN(g.group_count) AS min_count,
	MAX(g.group_count) AS max_count
FROM reference_count r
CROSS JOIN grouped_counts g
GROUP BY r.ref_count`, r.p.ReferenceTable, filter, groups, r.meta.Table, groups)
	return core.NewStatement(sql), nil
}

func (r *rowCountComparisonRule) CountQuery(rc *core.RunContext) (core.Statement, bool) {
	return countStatement(r.meta.Table, "", rc), true
}

func (r *rowCountComparisonRule) Evaluate(row core.Row, _ *core.RunContext) core.RuleResult {
	ref := int64Or0(row, "ref_count")
	total, bad := int64Or0(row, "total_groups"), int64Or0(row, "mismatching_groups")
	res := r.result()
	res.Success = bad == 0
	res.Observed = bad
	res.Expected = 0
	if res.Success {
		res.Message = fmt.Sprintf("All %d groups have expected count %d", total, ref)
		return res
	}
	lo, _ := row.Int64("min_count")
	hi, _ := row.Int64("max_count")
	res.Message = fmt.Sprintf("%d/%d groups have wrong count. Expected: %d, found range %d-%d", bad, total, ref, lo, hi)
	return res
}
