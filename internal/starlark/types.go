// Package starlark hosts the Starlark runtime used by script rules:
// value conversion between Go and Starlark, and compiled check scripts.
package starlark

import (
	"fmt"
	"math/big"
	"time"

	"go.starlark.net/starlark"
)

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, integers, floats, bool, time.Time, []string, []any, map[string]any
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case []byte:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int32:
		return starlark.MakeInt64(int64(val)), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case uint64:
		return starlark.MakeUint64(val), nil

	case *big.Int:
		return starlark.MakeBigInt(val), nil

	case float32:
		return starlark.Float(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case time.Time:
		return starlark.String(val.UTC().Format(time.RFC3339Nano)), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		return mapToDict(val)

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func mapToDict(m map[string]any) (*starlark.Dict, error) {
	dict := starlark.NewDict(len(m))
	for k, v := range m {
		sv, err := GoToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("dict key %q: %w", k, err)
		}
		if err := dict.SetKey(starlark.String(k), sv); err != nil {
			return nil, fmt.Errorf("dict setkey %q: %w", k, err)
		}
	}
	return dict, nil
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case starlark.Indexable:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}
