package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// EntryPoint is the function every check script must define.
const EntryPoint = "check"

// Script is a compiled check script. Its globals are frozen after
// compilation, so Call may be used from several goroutines at once.
type Script struct {
	name  string
	check starlark.Callable
}

// ScriptError describes a failure while compiling or running a script.
type ScriptError struct {
	Script  string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s: %s", e.Script, e.Message)
}

// Compile executes src once with the given predeclared globals and
// resolves its check function.
func Compile(name, src string, predeclared starlark.StringDict) (*Script, error) {
	thread := newThread(name)
	opts := &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
	}
	globals, err := starlark.ExecFileOptions(opts, thread, name, src, predeclared)
	if err != nil {
		return nil, &ScriptError{Script: name, Message: err.Error()}
	}
	globals.Freeze()

	fn, ok := globals[EntryPoint]
	if !ok {
		return nil, &ScriptError{Script: name, Message: fmt.Sprintf("missing %s(rows) function", EntryPoint)}
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, &ScriptError{Script: name, Message: fmt.Sprintf("%s is a %s, not a function", EntryPoint, fn.Type())}
	}
	return &Script{name: name, check: callable}, nil
}

// Name returns the script name used in error messages.
func (s *Script) Name() string { return s.name }

// Call invokes check(rows) and returns its dict result as a Go map.
func (s *Script) Call(rows []map[string]any) (map[string]any, error) {
	list := make([]starlark.Value, len(rows))
	for i, row := range rows {
		d, err := mapToDict(row)
		if err != nil {
			return nil, &ScriptError{Script: s.name, Message: fmt.Sprintf("row %d: %v", i, err)}
		}
		list[i] = d
	}

	out, err := starlark.Call(newThread(s.name), s.check, starlark.Tuple{starlark.NewList(list)}, nil)
	if err != nil {
		return nil, &ScriptError{Script: s.name, Message: err.Error()}
	}

	dict, ok := out.(*starlark.Dict)
	if !ok {
		return nil, &ScriptError{Script: s.name, Message: fmt.Sprintf("%s must return a dict, got %s", EntryPoint, out.Type())}
	}
	gv, err := ToGo(dict)
	if err != nil {
		return nil, &ScriptError{Script: s.name, Message: err.Error()}
	}
	return gv.(map[string]any), nil
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, _ string) {
			// scripts have no output channel
		},
	}
}
