// Package resultlog reads and writes the per-task JSONL result logs under
// <output_root>/<run_id>/tasks/<task>/results.jsonl.
package resultlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// FileName is the name of every per-task log.
const FileName = "results.jsonl"

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 << 20

// Path returns the log path for (run, task).
func Path(rc *core.RunContext, task string) string {
	return filepath.Join(rc.TasksDir(), task, FileName)
}

// Writer appends results to one task log. It is safe for concurrent use;
// every record is flushed as soon as it is written.
type Writer struct {
	mu   sync.Mutex
	path string
	f    *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	n    int
}

// Create opens the log for (run, task), truncating any previous content.
func Create(rc *core.RunContext, task string) (*Writer, error) {
	if task == "" || task == "." || task == ".." || filepath.Base(task) != task {
		return nil, fmt.Errorf("invalid task name %q", task)
	}
	path := Path(rc, task)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create task directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create result log: %w", err)
	}
	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &Writer{path: path, f: f, buf: buf, enc: enc}, nil
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string { return w.path }

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Append writes one result as a single line.
func (w *Writer) Append(r core.RuleResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return errors.New("result log is closed")
	}
	r.Observed = sanitize(r.Observed)
	r.Expected = sanitize(r.Expected)
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode result %s/%s: %w", r.Task, r.RuleID, err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush result log: %w", err)
	}
	w.n++
	return nil
}

// Close flushes and closes the log. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.f.Close()
	w.f = nil
	return errors.Join(flushErr, closeErr)
}

// sanitize replaces values encoding/json rejects.
func sanitize(v any) any {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	default:
		return v
	}
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return v
}

// Read loads every decodable record of a log. Malformed lines are skipped
// and reported; only an unreadable file is an error.
func Read(path string) ([]core.RuleResult, []*core.AggregationInputError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	var (
		out     []core.RuleResult
		skipped []*core.AggregationInputError
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		r, err := decodeRecord(raw)
		if err != nil {
			skipped = append(skipped, &core.AggregationInputError{Path: path, Line: line, Err: err})
			continue
		}
		if r.Task == "" || r.RuleID == "" {
			skipped = append(skipped, &core.AggregationInputError{Path: path, Line: line, Err: errors.New("record has no task or rule_id")})
			continue
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		skipped = append(skipped, &core.AggregationInputError{Path: path, Line: line + 1, Err: err})
	}
	return out, skipped, nil
}

// decodeRecord decodes one log line. Numbers stay json.Number so that
// integer observations above 2^53 pass through unchanged.
func decodeRecord(raw []byte) (core.RuleResult, error) {
	var r core.RuleResult
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return r, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return r, errors.New("unexpected data after record")
	}
	return r, nil
}
