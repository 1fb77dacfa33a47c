// Package aggregate merges the per-task result logs of a run, computes
// coverage statistics and writes the final artifacts.
package aggregate

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/leapstack-labs/leapcheck/internal/resultlog"
	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// Collected is the deduplicated, sorted result set of a run.
type Collected struct {
	Items    []core.RuleResult
	Datasets []string
	// Files lists the logs that were read, in merge order.
	Files []string
	// Skipped records unreadable logs and malformed lines.
	Skipped []*core.AggregationInputError
}

type logFile struct {
	path    string
	modTime time.Time
}

// Collect reads every task log of the run. When a (task, rule_id, dataset,
// column) appears more than once, the record from the most recently modified
// log wins, and within a log the later line wins.
func Collect(rc *core.RunContext, logger *slog.Logger) (*Collected, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if _, err := os.Stat(rc.RunDir()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, rc.RunDir())
		}
		return nil, fmt.Errorf("failed to stat run directory: %w", err)
	}

	pattern := filepath.Join(rc.TasksDir(), "*", resultlog.FileName)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list result logs: %w", err)
	}

	out := &Collected{}
	files := make([]logFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			if err == nil {
				err = errors.New("not a regular file")
			}
			out.Skipped = append(out.Skipped, &core.AggregationInputError{Path: p, Err: err})
			continue
		}
		files = append(files, logFile{path: p, modTime: info.ModTime()})
	}
	slices.SortFunc(files, func(a, b logFile) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})

	latest := make(map[core.ResultKey]core.RuleResult)
	for _, f := range files {
		items, skipped, err := resultlog.Read(f.path)
		if err != nil {
			out.Skipped = append(out.Skipped, &core.AggregationInputError{Path: f.path, Err: err})
			continue
		}
		out.Skipped = append(out.Skipped, skipped...)
		out.Files = append(out.Files, f.path)
		for _, it := range items {
			latest[it.Key()] = it
		}
	}

	for _, s := range out.Skipped {
		logger.Warn("skipped aggregation input", slog.String("error", s.Error()))
	}

	out.Items = make([]core.RuleResult, 0, len(latest))
	datasets := make(map[string]struct{})
	for _, it := range latest {
		out.Items = append(out.Items, it)
		if it.Dataset != "" {
			datasets[it.Dataset] = struct{}{}
		}
	}
	slices.SortFunc(out.Items, compareResults)
	out.Datasets = sortedKeys(datasets)

	logger.Debug("collected results",
		slog.Int("files", len(out.Files)),
		slog.Int("items", len(out.Items)),
		slog.Int("skipped", len(out.Skipped)))
	return out, nil
}

func compareResults(a, b core.RuleResult) int {
	return cmp.Or(
		cmp.Compare(a.Task, b.Task),
		cmp.Compare(a.Schema, b.Schema),
		cmp.Compare(a.Table, b.Table),
		cmp.Compare(a.ColumnName(), b.ColumnName()),
		cmp.Compare(a.RuleID, b.RuleID),
		cmp.Compare(a.Dataset, b.Dataset),
	)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
