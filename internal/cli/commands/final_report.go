package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcheck/internal/aggregate"
	"github.com/leapstack-labs/leapcheck/internal/cli/output"
	"github.com/leapstack-labs/leapcheck/internal/publish"
	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// FinalReportOptions holds options for the final-report command.
type FinalReportOptions struct {
	RunID     string
	ListRules bool
	Publish   bool
}

// NewFinalReportCommand creates the final-report command.
func NewFinalReportCommand() *cobra.Command {
	opts := &FinalReportOptions{}
	cmd := &cobra.Command{
		Use:   "final-report",
		Short: "Aggregate task results into the final report",
		Long: `Merge every task result log of a run, compute the coverage matrix and
write results.json and coverage.json to <output-dir>/<run-id>/final/.

Rerunning produces identical files. With --publish (or publish.enabled in
the config file) both files are uploaded to the configured store.`,
		Example: `  # Build the report of run 2024-06-01
  leapcheck final-report --run-id 2024-06-01

  # Print the registered rules first and publish the result
  leapcheck final-report --run-id r1 --list-rules --publish`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return finalReport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "Run identifier (required)")
	cmd.Flags().BoolVar(&opts.ListRules, "list-rules", false, "Print registered rules before building the report")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "Upload the report to the configured store")
	_ = cmd.MarkFlagRequired("run-id")

	return cmd
}

func finalReport(cmd *cobra.Command, opts *FinalReportOptions) error {
	ctx := cmd.Context()
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	rc, err := c.RunContext(opts.RunID)
	if err != nil {
		return err
	}

	reg, err := c.Registry()
	if err != nil {
		return err
	}
	if opts.ListRules {
		if err := renderRules(c.Renderer, reg.List()); err != nil {
			return err
		}
	}

	collected, err := aggregate.Collect(rc, c.Logger)
	if err != nil {
		if errors.Is(err, core.ErrRunNotFound) {
			return fmt.Errorf("%w\nHint: run 'leapcheck run-task --run-id %s' first", err, opts.RunID)
		}
		return err
	}
	coverage := aggregate.BuildCoverage(reg, collected)
	dir, err := aggregate.WriteOutputs(rc, collected, coverage)
	if err != nil {
		return err
	}
	c.Logger.Info("final report written",
		"run_id", rc.RunID(),
		"dir", dir,
		"results", len(collected.Items),
		"skipped", len(collected.Skipped))

	var published []publish.Info
	if opts.Publish || c.Cfg.Publish.Enabled {
		store, err := publish.Open(ctx, c.Cfg.Publish.Config)
		if err != nil {
			return err
		}
		published, err = publish.Publish(ctx, store, c.Cfg.Publish.Prefix, rc.RunID(), dir,
			[]string{aggregate.ResultsFile, aggregate.CoverageFile}, c.Logger)
		if err != nil {
			return err
		}
	}

	return renderReportSummary(c.Renderer, dir, collected, coverage, published)
}

// ReportSummary is the JSON output of final-report.
type ReportSummary struct {
	Dir        string               `json:"dir"`
	Results    int                  `json:"results"`
	Failed     int                  `json:"failed"`
	Skipped    int                  `json:"skipped"`
	Statistics aggregate.Statistics `json:"coverage_statistics"`
	Published  []publish.Info       `json:"published,omitempty"`
}

func renderReportSummary(r *output.Renderer, dir string, collected *aggregate.Collected, coverage *aggregate.Coverage, published []publish.Info) error {
	failed := len(aggregate.FailedItems(collected))
	stats := coverage.Statistics

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(ReportSummary{
			Dir:        dir,
			Results:    len(collected.Items),
			Failed:     failed,
			Skipped:    len(collected.Skipped),
			Statistics: stats,
			Published:  published,
		})
	}

	styles := r.Styles()
	r.Header("Final Report")
	r.Printf("Results:  %d (%d failed)\n", len(collected.Items), failed)
	r.Printf("Tables:   %d/%d validated (%.1f%%)\n",
		stats.TableCoverage.ValidatedTables, stats.TableCoverage.TotalTables, stats.TableCoverage.Percentage)
	r.Printf("Rules:    %d/%d applied (%.1f%%)\n",
		stats.RuleCoverage.AppliedRules, stats.RuleCoverage.TotalRules, stats.RuleCoverage.Percentage)
	if n := len(collected.Skipped); n > 0 {
		r.Println(styles.Warning.Render(fmt.Sprintf("Skipped:  %d unreadable entries", n)))
	}
	for _, info := range published {
		r.Muted("Published " + info.Key)
	}
	r.Println(dir)
	return nil
}
