package resultlog

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/leapcheck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRC(t *testing.T) *core.RunContext {
	t.Helper()
	rc, err := core.NewRunContext("run1", t.TempDir())
	require.NoError(t, err)
	return rc
}

func result(task, id string) core.RuleResult {
	r := core.NewResult(core.RuleMeta{Task: task, RuleID: id, Table: "grid.buses", Kind: core.KindFormal}, "v_nom")
	r.Success = true
	r.Observed = int64(0)
	r.Message = "a < b & c"
	r.ExecutedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return r
}

func TestWriteAndRead(t *testing.T) {
	rc := newRC(t)
	w, err := Create(rc, "grid")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rc.OutputRoot(), "run1", "tasks", "grid", "results.jsonl"), w.Path())

	require.NoError(t, w.Append(result("grid", "A")))
	require.NoError(t, w.Append(result("grid", "B")))
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second close is a no-op")

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"message":"a < b & c"`, "HTML must not be escaped")
	assert.Contains(t, lines[0], `"severity":"WARNING"`)

	got, skipped, err := Read(w.Path())
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[1].RuleID)
	assert.Equal(t, "v_nom", got[1].ColumnName())
	assert.True(t, got[0].ExecutedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestCreate_Truncates(t *testing.T) {
	rc := newRC(t)
	w, err := Create(rc, "grid")
	require.NoError(t, err)
	require.NoError(t, w.Append(result("grid", "OLD")))
	require.NoError(t, w.Close())

	w, err = Create(rc, "grid")
	require.NoError(t, err)
	require.NoError(t, w.Append(result("grid", "NEW")))
	require.NoError(t, w.Close())

	got, _, err := Read(Path(rc, "grid"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NEW", got[0].RuleID)
}

func TestCreate_InvalidTask(t *testing.T) {
	rc := newRC(t)
	for _, task := range []string{"", ".", "..", "a/b"} {
		_, err := Create(rc, task)
		assert.Error(t, err, task)
	}
}

func TestAppend_AfterClose(t *testing.T) {
	w, err := Create(newRC(t), "grid")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.Append(result("grid", "A")))
}

func TestAppend_NonFiniteNumbers(t *testing.T) {
	w, err := Create(newRC(t), "grid")
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	r := result("grid", "NAN")
	r.Observed = math.NaN()
	r.Expected = math.Inf(-1)
	require.NoError(t, w.Append(r))

	got, _, err := Read(w.Path())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NaN", got[0].Observed)
	assert.Equal(t, "-Infinity", got[0].Expected)
}

func TestAppend_Concurrent(t *testing.T) {
	w, err := Create(newRC(t), "grid")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Append(result("grid", "R")))
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	got, skipped, err := Read(w.Path())
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Len(t, got, 50)
}

func TestRead_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	content := `{"task":"t","rule_id":"A","success":true}
not json

{"task":"","rule_id":"B"}
{"task":"t","rule_id":"C","success":false}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, skipped, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[1].RuleID)
	require.Len(t, skipped, 2)
	assert.Equal(t, 2, skipped[0].Line)
	assert.Equal(t, 4, skipped[1].Line)
}

func TestRead_LargeCountsAreLossless(t *testing.T) {
	rc := newRC(t)
	w, err := Create(rc, "grid")
	require.NoError(t, err)
	r := result("grid", "BIG")
	r.Observed = int64(1<<53 + 1)
	r.Expected = 0.25
	require.NoError(t, w.Append(r))
	require.NoError(t, w.Close())

	got, _, err := Read(w.Path())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, json.Number("9007199254740993"), got[0].Observed)
	assert.Equal(t, json.Number("0.25"), got[0].Expected)

	out, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"observed":9007199254740993`)
}

func TestRead_TrailingDataIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	content := `{"task":"t","rule_id":"A","success":true} {"task":"t","rule_id":"B"}
{"task":"t","rule_id":"C","success":true}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, skipped, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "C", got[0].RuleID)
	require.Len(t, skipped, 1)
	assert.Equal(t, 1, skipped[0].Line)
}

func TestRead_MissingFile(t *testing.T) {
	_, _, err := Read(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
