package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcheck/internal/aggregate"
	"github.com/leapstack-labs/leapcheck/internal/cli/commands"
	"github.com/leapstack-labs/leapcheck/internal/cli/testutil"
	"github.com/leapstack-labs/leapcheck/internal/resultlog"
	"github.com/leapstack-labs/leapcheck/internal/state"
	_ "github.com/leapstack-labs/leapcheck/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestRunTask_WritesResultLog(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)

	out, err := execute(t, "--config", p.Config, "-o", "json", "run-task", "--run-id", "r1", "--task", "grid")
	require.NoError(t, err)

	summary := decode[commands.TaskSummary](t, out)
	assert.Equal(t, "grid", summary.Task)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, "LINE_COUNT", summary.Results[0].RuleID)

	rc, err := core.NewRunContext("r1", filepath.Join(p.Dir, "runs"))
	require.NoError(t, err)
	results, skipped, err := resultlog.Read(resultlog.Path(rc, "grid"))
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Len(t, results, 3)
}

func TestRunTask_TextOutput(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)

	out, err := execute(t, "--config", p.Config, "-o", "text", "run-task", "--run-id", "r1", "--task", "grid")
	require.NoError(t, err)
	testutil.AssertNoANSI(t, out)
	assert.Contains(t, out, "Task grid")
	assert.Contains(t, out, "V_NOM_NOT_NULL")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "3 rules, 1 failed")
}

func TestRunTask_UnknownTask(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)

	out, err := execute(t, "--config", p.Config, "-o", "json", "run-task", "--run-id", "r1", "--task", "nope")
	require.NoError(t, err)
	assert.Equal(t, 0, decode[commands.TaskSummary](t, out).Total)

	_, err = execute(t, "--config", p.Config, "run-task", "--run-id", "r1", "--task", "nope", "--strict")
	require.ErrorIs(t, err, core.ErrNoRulesForTask)
}

func TestRunTask_InfrastructureErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		args     []string
		want     string
	}{
		{
			name:     "invalid manifest",
			manifest: "tasks:\n  - name: grid\n    rules:\n      - rule_id: X\n        check: no_such_check\n        table: main.buses\n",
			args:     []string{"run-task", "--run-id", "r1", "--task", "grid"},
			want:     "failed to build rule registry",
		},
		{
			name:     "invalid run id",
			manifest: testutil.DefaultManifest,
			args:     []string{"run-task", "--run-id", "../up", "--task", "grid"},
			want:     "invalid run id",
		},
		{
			name:     "missing required flag",
			manifest: testutil.DefaultManifest,
			args:     []string{"run-task", "--task", "grid"},
			want:     "run-id",
		},
		{
			name:     "bad workers",
			manifest: testutil.DefaultManifest,
			args:     []string{"run-task", "--run-id", "r1", "--task", "grid", "--workers", "0"},
			want:     "workers must be at least 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.SetupTestProject(t, tt.manifest)
			_, err := execute(t, append([]string{"--config", p.Config}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunTask_MetricsTextfile(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)
	textfile := filepath.Join(t.TempDir(), "leapcheck.prom")
	t.Setenv("LEAPCHECK_METRICS__TEXTFILE", textfile)

	_, err := execute(t, "--config", p.Config, "-o", "json", "run-task", "--run-id", "r1", "--task", "grid")
	require.NoError(t, err)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `status="failed",task="grid"} 1`)
}

func TestFinalReport_EndToEnd(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)

	for _, task := range []string{"grid", "demand"} {
		_, err := execute(t, "--config", p.Config, "-o", "json", "run-task", "--run-id", "r1", "--task", task)
		require.NoError(t, err, task)
	}

	out, err := execute(t, "--config", p.Config, "-o", "json", "final-report", "--run-id", "r1", "--publish")
	require.NoError(t, err)
	summary := decode[commands.ReportSummary](t, out)

	finalDir := filepath.Join(p.Dir, "runs", "r1", "final")
	assert.Equal(t, finalDir, summary.Dir)
	assert.Equal(t, 4, summary.Results)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Statistics.TableCoverage.TotalTables)
	assert.Equal(t, 3, summary.Statistics.TableCoverage.ValidatedTables)
	assert.Equal(t, 4, summary.Statistics.RuleCoverage.TotalRules)
	assert.Len(t, summary.Published, 2)

	first, err := os.ReadFile(filepath.Join(finalDir, aggregate.CoverageFile))
	require.NoError(t, err)
	cov := decode[aggregate.Coverage](t, string(first))
	assert.Equal(t, []string{"LINE_COUNT", "V_NOM_NOT_NULL", "V_NOM_RANGE"}, cov.RulesFormal)
	assert.Equal(t, map[string][]string{"main.demand": {"DEMAND_POSITIVE"}}, cov.CustomChecks)

	published, err := os.ReadFile(filepath.Join(p.Dir, "published", "leapcheck", "r1", aggregate.CoverageFile))
	require.NoError(t, err)
	assert.Equal(t, first, published)

	// A second report is byte-identical.
	_, err = execute(t, "--config", p.Config, "final-report", "--run-id", "r1")
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(finalDir, aggregate.CoverageFile))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFinalReport_RerunTaskIsReproducible(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)
	resultsPath := filepath.Join(p.Dir, "runs", "r3", "final", aggregate.ResultsFile)

	report := func() []byte {
		_, err := execute(t, "--config", p.Config, "run-task", "--run-id", "r3", "--task", "grid")
		require.NoError(t, err)
		_, err = execute(t, "--config", p.Config, "final-report", "--run-id", "r3")
		require.NoError(t, err)
		data, err := os.ReadFile(resultsPath)
		require.NoError(t, err)
		return data
	}

	first := report()
	second := report()
	assert.Equal(t, string(first), string(second))
}

func TestFinalReport_PrintsDirectory(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)
	_, err := execute(t, "--config", p.Config, "run-task", "--run-id", "r2", "--task", "demand")
	require.NoError(t, err)

	out, err := execute(t, "--config", p.Config, "final-report", "--run-id", "r2", "--list-rules")
	require.NoError(t, err)
	testutil.AssertNoANSI(t, out)
	assert.Contains(t, out, "# Registered Rules")
	assert.Contains(t, out, "DEMAND_POSITIVE")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, filepath.Join(p.Dir, "runs", "r2", "final"), lines[len(lines)-1])
}

func TestFinalReport_MissingRun(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)

	_, err := execute(t, "--config", p.Config, "final-report", "--run-id", "never-ran")
	require.ErrorIs(t, err, core.ErrRunNotFound)
	assert.Contains(t, err.Error(), "run-task")
}

func TestRules_Listing(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)

	out, err := execute(t, "--config", p.Config, "rules", "--format", "json")
	require.NoError(t, err)
	all := decode[commands.RulesJSONOutput](t, out)
	assert.Equal(t, 4, all.Count.Total)
	assert.Equal(t, 3, all.Count.Formal)
	assert.Equal(t, 1, all.Count.Custom)

	out, err = execute(t, "--config", p.Config, "rules", "--format", "json", "--kind", "custom")
	require.NoError(t, err)
	custom := decode[commands.RulesJSONOutput](t, out)
	require.Len(t, custom.Rules, 1)
	assert.Equal(t, "DEMAND_POSITIVE", custom.Rules[0].RuleID)

	out, err = execute(t, "--config", p.Config, "rules", "--task", "grid", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "| V_NOM_RANGE |")
	assert.NotContains(t, out, "DEMAND_POSITIVE")

	_, err = execute(t, "--config", p.Config, "rules", "--kind", "weird")
	assert.ErrorContains(t, err, "unknown kind")
}

func TestHistory(t *testing.T) {
	p := testutil.SetupTestProject(t, testutil.DefaultManifest)

	out, err := execute(t, "--config", p.Config, "-o", "json", "history")
	require.NoError(t, err)
	assert.Empty(t, decode[[]state.TaskRun](t, out))

	for _, run := range []string{"r1", "r2"} {
		_, err := execute(t, "--config", p.Config, "run-task", "--run-id", run, "--task", "grid")
		require.NoError(t, err)
	}

	out, err = execute(t, "--config", p.Config, "-o", "json", "history")
	require.NoError(t, err)
	runs := decode[[]state.TaskRun](t, out)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].RunID)
	assert.Equal(t, state.StatusFailed, runs[0].Status)
	assert.Equal(t, 3, runs[0].Total)

	out, err = execute(t, "--config", p.Config, "-o", "json", "history", "--run-id", "r1")
	require.NoError(t, err)
	assert.Len(t, decode[[]state.TaskRun](t, out), 1)

	out, err = execute(t, "--config", p.Config, "-o", "text", "history", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "r2")
	assert.NotContains(t, out, "r1")
}

func TestVersion_SkipsConfig(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leapcheck v"+Version)
}

func TestCompletion(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "leapcheck")
}
