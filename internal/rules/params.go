package rules

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// Validator is implemented by every params struct.
type Validator interface {
	Validate() error
}

// Constructor turns raw manifest params into a rule factory.
type Constructor func(params map[string]any) (core.RuleFactory, error)

// Kinds maps check names to constructors. It is read-only after init.
var Kinds = map[string]Constructor{
	"not_null":              kind(NotNull),
	"range":                 kind(Range),
	"row_count":             kind(RowCount),
	"value_set":             kind(ValueSet),
	"referential_integrity": kind(ReferentialIntegrity),
	"balance":               kind(Balance),
	"array_cardinality":     kind(ArrayCardinality),
	"data_type":             kind(DataType),
	"srid":                  kind(SRID),
	"geometry_valid":        kind(GeometryValid),
	"row_count_comparison":  kind(RowCountComparison),
	"expression":            kind(Expression),
	"script":                kind(Script),
}

// Lookup returns the constructor for a check name.
func Lookup(check string) (Constructor, error) {
	c, ok := Kinds[check]
	if !ok {
		return nil, fmt.Errorf("unknown check %q (available: %v)", check, KindNames())
	}
	return c, nil
}

// KindNames returns the sorted check names.
func KindNames() []string {
	names := make([]string, 0, len(Kinds))
	for name := range Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func kind[P Validator](build func(P) core.RuleFactory) Constructor {
	return func(raw map[string]any) (core.RuleFactory, error) {
		var p P
		if err := DecodeParams(raw, &p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return build(p), nil
	}
}

// DecodeParams decodes raw params into out. Unknown keys are rejected.
func DecodeParams(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// factory wraps the validate-then-build sequence every constructor shares.
func factory[P Validator](p P, build func(b base, p P) (core.Rule, error), column func(P) string) core.RuleFactory {
	return func(meta core.RuleMeta) (core.Rule, error) {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		b, err := newBase(meta, column(p))
		if err != nil {
			return nil, err
		}
		return build(b, p)
	}
}
