// Package manifest loads rule registrations from a YAML file and applies
// them to a registry as explicit Register calls.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/leapstack-labs/leapcheck/internal/registry"
	"github.com/leapstack-labs/leapcheck/internal/rules"
	"github.com/leapstack-labs/leapcheck/pkg/core"
	"gopkg.in/yaml.v3"
)

// Manifest is the root of a rule manifest file.
type Manifest struct {
	Tasks []Task `yaml:"tasks"`
}

// Task groups the rules executed by one run-task invocation.
type Task struct {
	Name  string `yaml:"name"`
	Rules []Rule `yaml:"rules"`
}

// Rule is one registration. Params apply to every target; a target's own
// params override keys of the same name.
type Rule struct {
	RuleID    string         `yaml:"rule_id"`
	Check     string         `yaml:"check"`
	Kind      string         `yaml:"kind"`
	Table     string         `yaml:"table"`
	Severity  string         `yaml:"severity"`
	Tolerance float64        `yaml:"tolerance"`
	Params    map[string]any `yaml:"params"`
	Targets   []Target       `yaml:"targets"`
}

// Target applies a rule to one more table.
type Target struct {
	Table  string         `yaml:"table"`
	Params map[string]any `yaml:"params"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes manifest YAML. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Apply registers every rule of the manifest. All failures are reported;
// rules that fail leave no trace in the registry.
func (m *Manifest) Apply(reg *registry.Registry) error {
	var errs []error
	for _, task := range m.Tasks {
		for _, rule := range task.Rules {
			spec, err := rule.spec(task.Name)
			if err == nil {
				_, err = reg.Register(spec)
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Build loads the manifest at path into a fresh registry.
func Build(path string) (*registry.Registry, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	if err := m.Apply(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r Rule) spec(task string) (registry.RuleSpec, error) {
	invalid := func(err error) (registry.RuleSpec, error) {
		return registry.RuleSpec{}, &core.InvalidRuleError{Task: task, RuleID: r.RuleID, Err: err}
	}

	kind, ok := core.ParseKind(r.Kind)
	if !ok {
		return invalid(fmt.Errorf("unknown kind %q", r.Kind))
	}
	var severity core.Severity
	if r.Severity != "" {
		if severity, ok = core.ParseSeverity(r.Severity); !ok {
			return invalid(fmt.Errorf("unknown severity %q", r.Severity))
		}
	}
	ctor, err := rules.Lookup(r.Check)
	if err != nil {
		return invalid(err)
	}

	spec := registry.RuleSpec{
		Task:      task,
		RuleID:    r.RuleID,
		Check:     r.Check,
		Kind:      kind,
		Severity:  severity,
		Tolerance: r.Tolerance,
	}

	if r.Table != "" {
		f, err := ctor(r.Params)
		if err != nil {
			return invalid(fmt.Errorf("table %q: %w", r.Table, err))
		}
		spec.Table, spec.New = r.Table, f
	}
	for _, t := range r.Targets {
		params := maps.Clone(r.Params)
		if params == nil {
			params = make(map[string]any, len(t.Params))
		}
		maps.Copy(params, t.Params)
		f, err := ctor(params)
		if err != nil {
			return invalid(fmt.Errorf("table %q: %w", t.Table, err))
		}
		spec.Targets = append(spec.Targets, registry.Target{Table: t.Table, New: f})
	}
	return spec, nil
}
