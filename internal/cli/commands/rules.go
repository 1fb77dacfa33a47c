package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcheck/internal/cli/output"
	"github.com/leapstack-labs/leapcheck/internal/registry"
	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// RulesOptions holds options for the rules command.
type RulesOptions struct {
	Task   string // Filter by task
	Kind   string // Filter by kind: formal, custom
	Format string // Output format
}

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	opts := &RulesOptions{}
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List registered rules",
		Long: `List the rules registered by the manifest, one row per task and rule id.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown table
  - JSON: Machine-readable format`,
		Example: `  # List all rules
  leapcheck rules

  # Rules of one task
  leapcheck rules --task grid

  # Custom checks only, as JSON
  leapcheck rules --kind custom --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listRules(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Task, "task", "", "Filter by task")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "Filter by kind: formal, custom")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json, markdown")

	return cmd
}

func listRules(cmd *cobra.Command, opts *RulesOptions) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := c.Renderer

	// Override renderer if format flag is set
	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(opts.Format))
	}

	var kind core.Kind
	if opts.Kind != "" {
		k, ok := core.ParseKind(opts.Kind)
		if !ok {
			return fmt.Errorf("unknown kind %q (expected formal or custom)", opts.Kind)
		}
		kind = k
	}

	reg, err := c.Registry()
	if err != nil {
		return err
	}

	infos := filterRules(reg.List(), opts.Task, kind)
	return renderRules(r, infos)
}

func filterRules(infos []registry.Info, task string, kind core.Kind) []registry.Info {
	filtered := make([]registry.Info, 0, len(infos))
	for _, info := range infos {
		if task != "" && info.Task != task {
			continue
		}
		if kind != "" && info.Kind != kind {
			continue
		}
		filtered = append(filtered, info)
	}
	return filtered
}

// RulesJSONOutput is the JSON output structure for rules listing.
type RulesJSONOutput struct {
	Rules []registry.Info `json:"rules"`
	Count struct {
		Formal int `json:"formal"`
		Custom int `json:"custom"`
		Total  int `json:"total"`
	} `json:"count"`
}

func renderRules(r *output.Renderer, infos []registry.Info) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := RulesJSONOutput{Rules: infos}
		for _, info := range infos {
			if info.Kind == core.KindCustom {
				out.Count.Custom++
			} else {
				out.Count.Formal++
			}
		}
		out.Count.Total = len(infos)
		return r.JSON(out)
	}

	styles := r.Styles()
	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Task", "Rule", "Check", "Kind", "Severity", "Tables"})
	for _, info := range infos {
		t.AppendRow(table.Row{
			info.Task,
			info.RuleID,
			info.Check,
			string(info.Kind),
			getSeverityStyle(styles, info.Severity).Render(info.Severity.String()),
			strings.Join(info.Tables, ", "),
		})
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println("# Registered Rules")
		r.Println("")
		t.RenderMarkdown()
		r.Println("")
		return nil
	}

	r.Println(styles.Header1.Render(fmt.Sprintf("Registered Rules (%d)", len(infos))))
	t.Render()
	return nil
}

func getSeverityStyle(styles *output.Styles, sev core.Severity) lipgloss.Style {
	switch sev {
	case core.SeverityError:
		return styles.Error
	case core.SeverityWarning:
		return styles.Warning
	case core.SeverityInfo:
		return styles.Info
	default:
		return styles.Muted
	}
}
