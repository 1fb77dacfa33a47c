package commands

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcheck/internal/cli/output"
	"github.com/leapstack-labs/leapcheck/internal/engine"
	"github.com/leapstack-labs/leapcheck/internal/metrics"
	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// RunTaskOptions holds options for the run-task command.
type RunTaskOptions struct {
	RunID    string
	Task     string
	Scenario string
}

// NewRunTaskCommand creates the run-task command.
func NewRunTaskCommand() *cobra.Command {
	opts := &RunTaskOptions{}
	cmd := &cobra.Command{
		Use:   "run-task",
		Short: "Execute the rules of one task",
		Long: `Execute every rule registered for a task against the configured store
and write one result per rule to <output-dir>/<run-id>/tasks/<task>/results.jsonl.

Failing rules do not change the exit status. Only infrastructure errors do:
an unreadable manifest, an unreachable store, or an unknown task with --strict.`,
		Example: `  # Run the grid checks of run 2024-06-01
  leapcheck run-task --run-id 2024-06-01 --task grid

  # Restrict scenario-aware rules and use more workers
  leapcheck run-task --run-id r1 --task demand --scenario eGon2035 --workers 12`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "Run identifier (required)")
	cmd.Flags().StringVar(&opts.Task, "task", "", "Task name (required)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "Scenario for scenario-aware rules")
	cmd.Flags().Int("workers", engine.DefaultWorkers, "Number of concurrent rule executions")
	cmd.Flags().Bool("strict", false, "Fail when the task has no registered rules")
	_ = cmd.MarkFlagRequired("run-id")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func runTask(cmd *cobra.Command, opts *RunTaskOptions) error {
	ctx := cmd.Context()
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	var runOpts []core.RunOption
	if opts.Scenario != "" {
		runOpts = append(runOpts, core.WithScenario(opts.Scenario))
	}
	rc, err := c.RunContext(opts.RunID, runOpts...)
	if err != nil {
		return err
	}

	reg, err := c.Registry()
	if err != nil {
		return err
	}

	store, err := c.OpenAdapter(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	st, err := c.OpenState(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	m := metrics.New(nil)
	eng, err := engine.New(engine.Config{
		Adapter:  store,
		Registry: reg,
		Workers:  c.Cfg.Workers,
		Strict:   c.Cfg.Strict,
		Retry:    c.Cfg.Retry.Engine(),
		Logger:   c.Logger,
		Metrics:  m,
		State:    st,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := eng.RunForTask(ctx, rc, opts.Task)
	if err != nil {
		return err
	}

	if path := c.Cfg.Metrics.Textfile; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			c.Logger.Warn("failed to write metrics textfile", "path", path, "error", err)
		}
	}

	return renderRunSummary(c.Renderer, opts.Task, results, time.Since(start))
}

// TaskSummary is the JSON output of run-task.
type TaskSummary struct {
	Task     string            `json:"task"`
	Total    int               `json:"total"`
	Failed   int               `json:"failed"`
	Duration string            `json:"duration"`
	Results  []core.RuleResult `json:"results"`
}

func renderRunSummary(r *output.Renderer, task string, results []core.RuleResult, elapsed time.Duration) error {
	sorted := slices.Clone(results)
	slices.SortFunc(sorted, func(a, b core.RuleResult) int {
		return cmp.Or(cmp.Compare(a.RuleID, b.RuleID), cmp.Compare(a.Dataset, b.Dataset))
	})
	failed := 0
	for _, res := range sorted {
		if !res.Success {
			failed++
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(TaskSummary{
			Task:     task,
			Total:    len(sorted),
			Failed:   failed,
			Duration: elapsed.Round(time.Millisecond).String(),
			Results:  sorted,
		})
	}

	r.Header(fmt.Sprintf("Task %s", task))
	if len(sorted) == 0 {
		r.Muted("No rules registered for this task.")
		return nil
	}

	styles := r.Styles()
	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Rule", "Dataset", "Status", "Severity", "Message"})
	for _, res := range sorted {
		status := styles.StatusPassed.Render("PASSED")
		if !res.Success {
			status = styles.StatusFailed.Render("FAILED")
		}
		t.AppendRow(table.Row{res.RuleID, res.Dataset, status, res.Severity.String(), truncate(res.Message, 80)})
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		t.RenderMarkdown()
		r.Println("")
	} else {
		t.Render()
	}

	summary := fmt.Sprintf("%d rules, %d failed in %s", len(sorted), failed, elapsed.Round(time.Millisecond))
	if failed > 0 {
		r.Println(styles.Warning.Render(summary))
	} else {
		r.Success(summary)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
