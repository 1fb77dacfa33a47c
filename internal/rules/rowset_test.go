package rules

import (
	"testing"

	"github.com/leapstack-labs/leapcheck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpression(t *testing.T) {
	conn := openFixture(t, busesFixture...)
	rc := newRunContext(t)

	tests := []struct {
		name      string
		params    ExpressionParams
		tolerance float64
		want      bool
		observed  int64
	}{
		{
			name:     "all rows pass",
			params:   ExpressionParams{Expression: `row.id > 0`},
			want:     true,
			observed: 0,
		},
		{
			name:     "null carrier fails",
			params:   ExpressionParams{Expression: `row.carrier in ["AC", "DC"]`, Columns: []string{"carrier"}},
			want:     false,
			observed: 1,
		},
		{
			name:      "tolerance absorbs failures",
			params:    ExpressionParams{Expression: `row.carrier == "AC"`, Columns: []string{"carrier"}},
			tolerance: 2,
			want:      true,
			observed:  2,
		},
		{
			name:     "non-boolean results count as failures",
			params:   ExpressionParams{Expression: `row.id`},
			want:     false,
			observed: 5,
		},
		{
			name:     "limit caps the rows",
			params:   ExpressionParams{Expression: `row.id < 3`, Limit: 2},
			want:     true,
			observed: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := build(t, Expression(tt.params), core.RuleMeta{Table: "buses", Tolerance: tt.tolerance, Kind: core.KindCustom})
			res := evaluate(t, conn, r, rc)
			assert.Equal(t, tt.want, res.Success, res.Message)
			assert.Equal(t, tt.observed, res.Observed)
			assert.Equal(t, core.KindCustom, res.Kind)
		})
	}
}

func TestExpression_EvalErrorsCountAsFailures(t *testing.T) {
	conn := openFixture(t, busesFixture...)
	r := build(t, Expression(ExpressionParams{Expression: `row.missing == 1`}), core.RuleMeta{Table: "buses"})

	res := evaluate(t, conn, r, newRunContext(t))
	assert.False(t, res.Success)
	assert.Equal(t, int64(5), res.Observed)
	assert.Contains(t, res.Message, "first error")
}

func TestExpression_CompileError(t *testing.T) {
	_, err := Expression(ExpressionParams{Expression: `row.id >`})(core.RuleMeta{Task: "t", RuleID: "r", Table: "buses"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile error")
}

const sumScript = `
def check(rows):
    total = 0
    for r in rows:
        total += r["id"]
    return {"success": total <= 15 + tolerance, "observed": total, "expected": 15, "message": "%s id sum %d" % (dataset, total)}
`

func TestScript(t *testing.T) {
	conn := openFixture(t, busesFixture...)
	rc := newRunContext(t, core.WithScenario("eGon2035"))

	r := build(t, Script(ScriptParams{Script: sumScript, Columns: []string{"id"}, ScenarioColumn: "scn"}), core.RuleMeta{Table: "buses", Kind: core.KindCustom})
	res := evaluate(t, conn, r, rc)
	assert.True(t, res.Success)
	assert.Equal(t, int64(6), res.Observed)
	assert.Equal(t, int64(15), res.Expected)
	assert.Equal(t, "buses id sum 6", res.Message)
}

func TestScript_BadResult(t *testing.T) {
	conn := openFixture(t, busesFixture...)
	r := build(t, Script(ScriptParams{Script: "def check(rows):\n    return {\"ok\": True}\n"}), core.RuleMeta{Table: "buses"})

	res := evaluate(t, conn, r, newRunContext(t))
	assert.False(t, res.Success)
	assert.Equal(t, core.SeverityError, res.Severity)
	assert.Contains(t, res.Message, `no boolean "success"`)
}

func TestScript_RuntimeError(t *testing.T) {
	conn := openFixture(t, busesFixture...)
	r := build(t, Script(ScriptParams{Script: "def check(rows):\n    return {\"success\": rows[0][\"nope\"]}\n"}), core.RuleMeta{Table: "buses"})

	res := evaluate(t, conn, r, newRunContext(t))
	assert.False(t, res.Success)
	assert.Equal(t, core.SeverityError, res.Severity)
}

func TestScript_CompileError(t *testing.T) {
	_, err := Script(ScriptParams{Script: "x = 1"})(core.RuleMeta{Task: "t", RuleID: "r", Table: "buses"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing check(rows) function")
}
