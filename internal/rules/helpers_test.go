package rules

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapcheck/pkg/adapter"
	"github.com/leapstack-labs/leapcheck/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapcheck/pkg/core"
	"github.com/stretchr/testify/require"
)

// openFixture creates a file-backed sqlite database and runs the setup DDL.
func openFixture(t *testing.T, setup ...string) core.Conn {
	t.Helper()
	ctx := context.Background()

	a := sqlite.New(nil)
	require.NoError(t, a.Connect(ctx, adapter.Config{Path: filepath.Join(t.TempDir(), "fixture.db")}))
	t.Cleanup(func() { _ = a.Close() })

	for _, stmt := range setup {
		_, err := a.DB.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	conn, err := a.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newRunContext(t *testing.T, opts ...core.RunOption) *core.RunContext {
	t.Helper()
	rc, err := core.NewRunContext("test-run", t.TempDir(), opts...)
	require.NoError(t, err)
	return rc
}

func build(t *testing.T, f core.RuleFactory, meta core.RuleMeta) core.Rule {
	t.Helper()
	if meta.Task == "" {
		meta.Task = "task"
	}
	if meta.RuleID == "" {
		meta.RuleID = "RULE"
	}
	r, err := f(meta)
	require.NoError(t, err)
	return r
}

// evaluate runs a rule the way the engine does, minus retries and the probe.
func evaluate(t *testing.T, conn core.Conn, r core.Rule, rc *core.RunContext) core.RuleResult {
	t.Helper()
	ctx := context.Background()
	switch rule := r.(type) {
	case core.QueryRule:
		stmt, err := rule.Query(rc)
		require.NoError(t, err)
		row, err := conn.QueryOne(ctx, stmt)
		require.NoError(t, err)
		return rule.Evaluate(row, rc)
	case core.RowSetRule:
		stmt, err := rule.Query(rc)
		require.NoError(t, err)
		rows, err := conn.QueryAll(ctx, stmt, rule.RowLimit())
		require.NoError(t, err)
		return rule.EvaluateRows(rows, rc)
	}
	t.Fatalf("rule %T has no execution capability", r)
	return core.RuleResult{}
}

func ptr[T any](v T) *T { return &v }
