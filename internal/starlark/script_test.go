package starlark

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

const sumScript = `
def check(rows):
    total = 0
    for r in rows:
        total += r["value"]
    return {"success": total <= limit, "observed": total, "message": "sum is %d" % total}
`

func TestCompileAndCall(t *testing.T) {
	s, err := Compile("sum.star", sumScript, starlark.StringDict{"limit": starlark.MakeInt(10)})
	require.NoError(t, err)
	assert.Equal(t, "sum.star", s.Name())

	out, err := s.Call([]map[string]any{{"value": int64(4)}, {"value": int64(5)}})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, int64(9), out["observed"])
	assert.Equal(t, "sum is 9", out["message"])
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "syntax error", src: "def check(rows)\n  pass", want: "script bad.star"},
		{name: "missing entry point", src: "x = 1", want: "missing check(rows) function"},
		{name: "entry point not callable", src: "check = 1", want: "not a function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("bad.star", tt.src, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCall_NonDictResult(t *testing.T) {
	s, err := Compile("list.star", "def check(rows):\n    return [1]\n", nil)
	require.NoError(t, err)
	_, err = s.Call(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must return a dict")
}

func TestCall_Concurrent(t *testing.T) {
	s, err := Compile("len.star", "def check(rows):\n    return {\"success\": len(rows) > 0}\n", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.Call([]map[string]any{{"a": int64(1)}})
			assert.NoError(t, err)
			assert.Equal(t, true, out["success"])
		}()
	}
	wg.Wait()
}
