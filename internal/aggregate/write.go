package aggregate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// Output file names under <output_root>/<run_id>/final.
const (
	ResultsFile  = "results.json"
	CoverageFile = "coverage.json"
)

type resultsDoc struct {
	Items []resultItem `json:"items"`
}

// resultItem is a RuleResult without executed_at. Execution times stay in
// the per-task logs so that rerunning a task on unchanged data reproduces
// results.json byte for byte.
type resultItem struct {
	Task     string        `json:"task"`
	RuleID   string        `json:"rule_id"`
	Dataset  string        `json:"dataset"`
	Schema   string        `json:"schema"`
	Table    string        `json:"table"`
	Column   *string       `json:"column"`
	Success  bool          `json:"success"`
	Observed any           `json:"observed"`
	Expected any           `json:"expected"`
	Message  string        `json:"message"`
	Severity core.Severity `json:"severity"`
	Kind     core.Kind     `json:"kind"`
}

func newResultItem(r core.RuleResult) resultItem {
	return resultItem{
		Task:     r.Task,
		RuleID:   r.RuleID,
		Dataset:  r.Dataset,
		Schema:   r.Schema,
		Table:    r.Table,
		Column:   r.Column,
		Success:  r.Success,
		Observed: r.Observed,
		Expected: r.Expected,
		Message:  r.Message,
		Severity: r.Severity,
		Kind:     r.Kind,
	}
}

// WriteOutputs writes results.json and coverage.json and returns the
// directory they were written to.
func WriteOutputs(rc *core.RunContext, collected *Collected, coverage *Coverage) (string, error) {
	dir := rc.FinalDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	items := make([]resultItem, 0, len(collected.Items))
	for _, it := range collected.Items {
		items = append(items, newResultItem(it))
	}
	if err := writeJSON(filepath.Join(dir, ResultsFile), resultsDoc{Items: items}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, CoverageFile), coverage); err != nil {
		return "", err
	}
	return dir, nil
}

// writeJSON encodes v with two-space indentation and replaces path
// atomically.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", filepath.Base(path), err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
