package core

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
		ok   bool
	}{
		{"info", SeverityInfo, true},
		{"WARNING", SeverityWarning, true},
		{"warn", SeverityWarning, true},
		{" Error ", SeverityError, true},
		{"fatal", SeverityWarning, false},
		{"", SeverityWarning, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSeverity(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestSeverity_OrDefault(t *testing.T) {
	assert.Equal(t, SeverityWarning, Severity("").OrDefault())
	assert.Equal(t, SeverityError, SeverityError.OrDefault())
	assert.Equal(t, "error", SeverityError.String())
	assert.False(t, Severity("hint").Valid())
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("")
	assert.True(t, ok)
	assert.Equal(t, KindFormal, k)

	k, ok = ParseKind("Custom")
	assert.True(t, ok)
	assert.Equal(t, KindCustom, k)

	_, ok = ParseKind("sanity")
	assert.False(t, ok)
}

func TestNewRunContext(t *testing.T) {
	extra := map[string]any{"host": "db"}
	rc, err := NewRunContext("run-1", "/tmp/out", WithScenario("eGon2035"), WithDialect("postgres"), WithExtra(extra))
	require.NoError(t, err)

	assert.Equal(t, "run-1", rc.RunID())
	assert.Equal(t, "eGon2035", rc.Scenario())
	assert.Equal(t, "postgres", rc.Dialect())
	assert.Equal(t, filepath.Join("/tmp/out", "run-1", "tasks"), rc.TasksDir())
	assert.Equal(t, filepath.Join("/tmp/out", "run-1", "final"), rc.FinalDir())

	// mutations of the source map and of returned copies do not leak in
	extra["host"] = "other"
	got := rc.Extra()
	got["host"] = "changed"
	assert.Equal(t, "db", rc.Extra()["host"])
}

func TestNewRunContext_Defaults(t *testing.T) {
	rc, err := NewRunContext("r1", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultOutputRoot, rc.OutputRoot())
	assert.Empty(t, rc.Scenario())
	assert.Empty(t, rc.Dialect())
	assert.Empty(t, rc.Extra())
}

func TestNewRunContext_InvalidRunID(t *testing.T) {
	for _, id := range []string{"", "..", "a/b", "../x", ".hidden"} {
		_, err := NewRunContext(id, "out")
		assert.Error(t, err, id)
	}
}

func TestRuleMeta_Names(t *testing.T) {
	m := RuleMeta{Table: "grid.egon_buses"}
	assert.Equal(t, "grid", m.Schema())
	assert.Equal(t, "egon_buses", m.TableName())
	assert.Equal(t, "grid.egon_buses", m.Dataset())

	bare := RuleMeta{Table: "buses"}
	assert.Empty(t, bare.Schema())
	assert.Equal(t, "buses", bare.TableName())
}

func TestNewResult(t *testing.T) {
	meta := RuleMeta{Task: "t", RuleID: "r", Table: "s.x", Kind: KindFormal}
	r := NewResult(meta, "col")
	assert.Equal(t, "s", r.Schema)
	assert.Equal(t, "x", r.Table)
	assert.Equal(t, SeverityWarning, r.Severity)
	assert.Equal(t, "col", r.ColumnName())
	assert.Equal(t, ResultKey{Task: "t", RuleID: "r", Dataset: "s.x", Column: "col"}, r.Key())

	noCol := NewResult(meta, "")
	assert.Nil(t, noCol.Column)
}

func TestRuleResult_JSON(t *testing.T) {
	r := NewResult(RuleMeta{Task: "t", RuleID: "r", Table: "s.x", Kind: KindCustom, Severity: SeverityError}, "")
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "ERROR", m["severity"])
	assert.Equal(t, "custom", m["kind"])
	assert.Contains(t, m, "column")
	assert.Nil(t, m["column"])
}

func TestRow_Accessors(t *testing.T) {
	row := Row{
		"n":     int64(4),
		"s":     "12.5",
		"b":     []byte("7"),
		"f":     float64(2.5),
		"flag":  true,
		"nil":   nil,
		"words": "abc",
	}

	i, ok := row.Int64("n")
	assert.True(t, ok)
	assert.Equal(t, int64(4), i)

	i, ok = row.Int64("b")
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)

	f, ok := row.Float64("s")
	assert.True(t, ok)
	assert.InDelta(t, 12.5, f, 1e-9)

	_, ok = row.Int64("nil")
	assert.False(t, ok)
	_, ok = row.Int64("missing")
	assert.False(t, ok)
	_, ok = row.Float64("words")
	assert.False(t, ok)

	s, ok := row.String("f")
	assert.True(t, ok)
	assert.Equal(t, "2.5", s)

	b, ok := row.Bool("flag")
	assert.True(t, ok)
	assert.True(t, b)
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")

	e1 := &RuleExecutionError{Task: "t", RuleID: "r", Attempts: 1, Err: cause}
	assert.Equal(t, "rule execution failed: boom", e1.Error())
	assert.ErrorIs(t, e1, cause)

	e3 := &RuleExecutionError{Task: "t", RuleID: "r", Attempts: 3, Err: cause}
	assert.Equal(t, "rule execution failed after 3 attempts: boom", e3.Error())

	var dup *DuplicateRuleError
	err := error(&DuplicateRuleError{Task: "t", RuleID: "r"})
	assert.ErrorAs(t, err, &dup)

	agg := &AggregationInputError{Path: "a.jsonl", Line: 3, Err: cause}
	assert.Equal(t, "a.jsonl:3: boom", agg.Error())
	assert.Equal(t, "a.jsonl: boom", (&AggregationInputError{Path: "a.jsonl", Err: cause}).Error())
}

func TestStatement_With(t *testing.T) {
	base := NewStatement("SELECT :a")
	s1 := base.With("a", 1)
	s2 := s1.With("b", 2)
	assert.Nil(t, base.Args)
	assert.Len(t, s1.Args, 1)
	assert.Len(t, s2.Args, 2)
}
