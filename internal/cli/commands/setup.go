// Package commands implements the leapcheck CLI commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcheck/internal/cli/output"
	"github.com/leapstack-labs/leapcheck/internal/config"
	"github.com/leapstack-labs/leapcheck/internal/manifest"
	"github.com/leapstack-labs/leapcheck/internal/registry"
	"github.com/leapstack-labs/leapcheck/internal/state"
	"github.com/leapstack-labs/leapcheck/pkg/adapter"
	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// CommandContext holds the dependencies shared by command handlers.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds a CommandContext from the command's context.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}, nil
}

// Registry builds the rule registry from the configured manifest.
func (c *CommandContext) Registry() (*registry.Registry, error) {
	reg, err := manifest.Build(c.Cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule registry: %w", err)
	}
	c.Logger.Debug("rule registry built", "manifest", c.Cfg.Manifest, "rules", reg.Count(), "tasks", len(reg.AllTasks()))
	return reg, nil
}

// OpenAdapter connects to the configured target.
func (c *CommandContext) OpenAdapter(ctx context.Context) (adapter.Adapter, error) {
	return adapter.Open(ctx, c.Cfg.Target.AdapterConfig(), c.Logger)
}

// OpenState opens and migrates the state database.
func (c *CommandContext) OpenState(ctx context.Context) (*state.SQLiteStore, error) {
	store, err := state.Open(ctx, c.Cfg.StatePath, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return store, nil
}

// RunContext builds the run context for runID under the output directory.
func (c *CommandContext) RunContext(runID string, opts ...core.RunOption) (*core.RunContext, error) {
	opts = append([]core.RunOption{core.WithDialect(c.Cfg.Target.Type)}, opts...)
	return core.NewRunContext(runID, c.Cfg.OutputDir, opts...)
}
