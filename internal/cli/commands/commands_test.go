package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcheck/internal/cli/output"
	"github.com/leapstack-labs/leapcheck/internal/cli/testutil"
	"github.com/leapstack-labs/leapcheck/internal/config"
	"github.com/leapstack-labs/leapcheck/internal/registry"
	"github.com/leapstack-labs/leapcheck/internal/state"
	"github.com/leapstack-labs/leapcheck/pkg/core"
)

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewRunTaskCommand(), "run-task", []string{"run-id", "task", "scenario", "workers", "strict"}},
		{NewFinalReportCommand(), "final-report", []string{"run-id", "list-rules", "publish"}},
		{NewRulesCommand(), "rules", []string{"task", "kind", "format"}},
		{NewHistoryCommand(), "history", []string{"run-id", "limit"}},
	}
	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Example, "Example should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestNewCommandContext_RequiresConfig(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	_, err := NewCommandContext(cmd)
	require.Error(t, err)

	cfg := &config.Config{Output: "json", OutputDir: t.TempDir(), Target: config.TargetConfig{Type: "postgres"}}
	cmd.SetContext(config.WithConfig(context.Background(), cfg))
	c, err := NewCommandContext(cmd)
	require.NoError(t, err)
	assert.Same(t, cfg, c.Cfg)
	assert.Equal(t, output.ModeJSON, c.Renderer.EffectiveMode())

	rc, err := c.RunContext("r1")
	require.NoError(t, err)
	assert.Equal(t, cfg.OutputDir, rc.OutputRoot())
	assert.Equal(t, "postgres", rc.Dialect())
}

func sampleInfos() []registry.Info {
	return []registry.Info{
		{Task: "grid", RuleID: "V_NOM_NOT_NULL", Check: "not_null", Kind: core.KindFormal, Severity: core.SeverityError, Tables: []string{"grid.bus"}},
		{Task: "grid", RuleID: "REF", Check: "referential_integrity", Kind: core.KindFormal, Severity: core.SeverityWarning, Tables: []string{"grid.load", "grid.line"}},
		{Task: "demand", RuleID: "SUM", Check: "script", Kind: core.KindCustom, Severity: core.SeverityInfo, Tables: []string{"demand.hh"}},
	}
}

func TestFilterRules(t *testing.T) {
	infos := sampleInfos()
	assert.Len(t, filterRules(infos, "", ""), 3)
	assert.Len(t, filterRules(infos, "grid", ""), 2)
	assert.Len(t, filterRules(infos, "", core.KindCustom), 1)
	assert.Empty(t, filterRules(infos, "demand", core.KindFormal))
}

func TestRenderRules(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		tr := testutil.NewTestRenderer(output.ModeText, false)
		require.NoError(t, renderRules(tr.Renderer, sampleInfos()))
		out := tr.Output()
		testutil.AssertNoANSI(t, out)
		assert.Contains(t, out, "Registered Rules (3)")
		assert.Contains(t, out, "grid.load, grid.line")
		assert.Contains(t, out, "warning")
	})

	t.Run("markdown", func(t *testing.T) {
		tr := testutil.NewTestRenderer(output.ModeMarkdown, false)
		require.NoError(t, renderRules(tr.Renderer, sampleInfos()))
		assert.Contains(t, tr.Output(), "| demand | SUM | script | custom | info | demand.hh |")
	})

	t.Run("json", func(t *testing.T) {
		tr := testutil.NewTestRenderer(output.ModeJSON, false)
		require.NoError(t, renderRules(tr.Renderer, sampleInfos()))
		assert.Contains(t, tr.Output(), `"formal": 2`)
		assert.Contains(t, tr.Output(), `"custom": 1`)
		assert.Contains(t, tr.Output(), `"severity": "ERROR"`)
	})
}

func TestRenderRunSummary(t *testing.T) {
	col := "v_nom"
	results := []core.RuleResult{
		{Task: "grid", RuleID: "B", Dataset: "grid.bus", Column: &col, Success: false, Severity: core.SeverityError, Message: strings.Repeat("x", 100)},
		{Task: "grid", RuleID: "A", Dataset: "grid.bus", Success: true, Severity: core.SeverityInfo, Message: "ok"},
	}

	tr := testutil.NewTestRenderer(output.ModeText, false)
	require.NoError(t, renderRunSummary(tr.Renderer, "grid", results, 1500*time.Millisecond))
	out := tr.Output()
	assert.Less(t, strings.Index(out, " A "), strings.Index(out, " B "), "rows sorted by rule id")
	assert.Contains(t, out, strings.Repeat("x", 77)+"...")
	assert.Contains(t, out, "2 rules, 1 failed in 1.5s")

	tr = testutil.NewTestRenderer(output.ModeText, false)
	require.NoError(t, renderRunSummary(tr.Renderer, "empty", nil, 0))
	assert.Contains(t, tr.Output(), "No rules registered")
}

func TestRenderHistory(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	runs := []state.TaskRun{
		{RunID: "r1", Task: "grid", StartedAt: start, CompletedAt: start.Add(2 * time.Second), Total: 3, Failed: 1, Status: state.StatusFailed},
	}

	tr := testutil.NewTestRenderer(output.ModeText, false)
	require.NoError(t, renderHistory(tr.Renderer, runs))
	assert.Contains(t, tr.Output(), "2024-06-01T12:00:00Z")
	assert.Contains(t, tr.Output(), "2s")
	assert.Contains(t, tr.Output(), "failed")

	tr = testutil.NewTestRenderer(output.ModeJSON, false)
	require.NoError(t, renderHistory(tr.Renderer, nil))
	assert.Equal(t, "[]\n", tr.Output())

	tr = testutil.NewTestRenderer(output.ModeMarkdown, false)
	require.NoError(t, renderHistory(tr.Renderer, nil))
	assert.Contains(t, tr.Output(), "No task executions recorded.")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "äöüäöüä...", truncate("äöüäöüäöüäöü", 10))
}
