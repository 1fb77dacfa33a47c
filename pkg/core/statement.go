package core

import "maps"

// Statement is SQL text with named arguments. Arguments are referenced in the
// text as :name and bound by the adapter in its driver's placeholder style.
type Statement struct {
	SQL  string
	Args map[string]any
}

// NewStatement creates a statement without arguments.
func NewStatement(sql string) Statement {
	return Statement{SQL: sql}
}

// With returns a copy of the statement with name bound to value.
func (s Statement) With(name string, value any) Statement {
	args := make(map[string]any, len(s.Args)+1)
	maps.Copy(args, s.Args)
	args[name] = value
	return Statement{SQL: s.SQL, Args: args}
}
