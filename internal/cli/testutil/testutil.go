// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/leapstack-labs/leapcheck/internal/cli/output"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Project is a temporary leapcheck project: a config file, a manifest and a
// SQLite store with sample tables.
type Project struct {
	Dir       string
	Config    string
	Manifest  string
	StorePath string
}

// DefaultManifest registers rules against the tables created by SetupTestProject.
const DefaultManifest = `tasks:
  - name: grid
    rules:
      - rule_id: V_NOM_NOT_NULL
        check: not_null
        table: main.buses
        params:
          column: v_nom
      - rule_id: V_NOM_RANGE
        check: range
        table: main.buses
        params:
          column: v_nom
          min: 0
          max: 400
      - rule_id: LINE_COUNT
        check: row_count
        table: main.lines
        params:
          expected_count: 2
  - name: demand
    rules:
      - rule_id: DEMAND_POSITIVE
        check: expression
        kind: custom
        table: main.demand
        params:
          expression: "row.value > 0.0"
          columns: [value]
`

// SetupTestProject creates a project in a temp dir. The grid task has one
// failing rule (a NULL v_nom); the demand task passes.
func SetupTestProject(t *testing.T, manifest string) *Project {
	t.Helper()

	dir := t.TempDir()
	p := &Project{
		Dir:       dir,
		Config:    filepath.Join(dir, "leapcheck.yaml"),
		Manifest:  filepath.Join(dir, "rules.yaml"),
		StorePath: filepath.Join(dir, "store.db"),
	}

	db, err := sql.Open("sqlite", p.StorePath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, stmt := range []string{
		"CREATE TABLE buses (id INTEGER, v_nom REAL)",
		"INSERT INTO buses VALUES (1, 110.0), (2, NULL), (3, 380.0)",
		"CREATE TABLE lines (id INTEGER, length REAL)",
		"INSERT INTO lines VALUES (1, 10.5), (2, 3.2)",
		"CREATE TABLE demand (id INTEGER, value REAL)",
		"INSERT INTO demand VALUES (1, 4.0), (2, 7.5)",
	} {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("failed to execute %q: %v", stmt, err)
		}
	}

	config := `output_dir: runs
manifest: rules.yaml
state_path: state/state.db
workers: 2
retry:
  max_attempts: 1
target:
  type: sqlite
  path: store.db
publish:
  driver: fs
  fs:
    root: published
`
	if err := os.WriteFile(p.Config, []byte(config), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := os.WriteFile(p.Manifest, []byte(manifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return p
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
