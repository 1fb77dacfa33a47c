package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcheck/internal/cli/output"
	"github.com/leapstack-labs/leapcheck/internal/state"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	RunID string
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded task executions",
		Long:  `List task executions recorded in the state database, newest first.`,
		Example: `  # Last 20 executions
  leapcheck history

  # Every task of one run
  leapcheck history --run-id 2024-06-01 --limit 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "Only show executions of this run")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of rows (0 for all)")

	return cmd
}

func showHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	st, err := c.OpenState(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runs, err := st.ListTaskRuns(cmd.Context(), opts.RunID, opts.Limit)
	if err != nil {
		return err
	}
	return renderHistory(c.Renderer, runs)
}

func renderHistory(r *output.Renderer, runs []state.TaskRun) error {
	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []state.TaskRun{}
		}
		return r.JSON(runs)
	}

	if len(runs) == 0 {
		r.Muted("No task executions recorded.")
		return nil
	}

	styles := r.Styles()
	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Task", "Started", "Duration", "Total", "Failed", "Status"})
	for _, run := range runs {
		status := string(run.Status)
		switch run.Status {
		case state.StatusPassed:
			status = styles.StatusPassed.Render(status)
		case state.StatusFailed, state.StatusError:
			status = styles.StatusFailed.Render(status)
		}
		t.AppendRow(table.Row{
			run.RunID,
			run.Task,
			run.StartedAt.Format(time.RFC3339),
			run.Duration().Round(time.Millisecond).String(),
			run.Total,
			run.Failed,
			status,
		})
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		t.RenderMarkdown()
		r.Println("")
		return nil
	}
	t.Render()
	return nil
}
