// Package registry holds the rules of every task. It is built once at
// startup through explicit Register calls and read-only afterwards.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapcheck/pkg/core"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Target is one table a registration applies to. A nil New falls back to
// the registration's factory.
type Target struct {
	Table string
	New   core.RuleFactory
}

// RuleSpec describes one registration. Identity is (Task, RuleID).
// Table/New register a single target; Targets registers several.
type RuleSpec struct {
	Task      string
	RuleID    string
	Check     string
	Kind      core.Kind
	Severity  core.Severity
	Tolerance float64
	Table     string
	New       core.RuleFactory
	Targets   []Target
}

// Handle is returned by Register for the caller's bookkeeping.
type Handle struct {
	Task   string
	RuleID string
	Tables []string
}

// Info describes a registration for listings.
type Info struct {
	Task      string        `json:"task"`
	RuleID    string        `json:"rule_id"`
	Check     string        `json:"check,omitempty"`
	Kind      core.Kind     `json:"kind"`
	Severity  core.Severity `json:"severity"`
	Tolerance float64       `json:"tolerance"`
	Tables    []string      `json:"tables"`
}

type entry struct {
	info  Info
	rules []core.Rule
}

type identity struct {
	task   string
	ruleID string
}

// Registry maps tasks to their ordered rules.
type Registry struct {
	mu sync.RWMutex

	// tasks in first-registration order
	tasks  []string
	byTask map[string][]*entry
	ids    map[identity]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byTask: make(map[string][]*entry),
		ids:    make(map[identity]struct{}),
	}
}

// Register validates spec, builds its rule instances and adds them.
// On any error the registry is left unchanged.
func (r *Registry) Register(spec RuleSpec) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := identity{task: spec.Task, ruleID: spec.RuleID}
	if err := validateNames(spec); err != nil {
		return nil, &core.InvalidRuleError{Task: spec.Task, RuleID: spec.RuleID, Err: err}
	}
	if _, dup := r.ids[id]; dup {
		return nil, &core.DuplicateRuleError{Task: spec.Task, RuleID: spec.RuleID}
	}

	e, err := buildEntry(spec)
	if err != nil {
		return nil, &core.InvalidRuleError{Task: spec.Task, RuleID: spec.RuleID, Err: err}
	}

	if _, known := r.byTask[spec.Task]; !known {
		r.tasks = append(r.tasks, spec.Task)
	}
	r.byTask[spec.Task] = append(r.byTask[spec.Task], e)
	r.ids[id] = struct{}{}

	return &Handle{Task: spec.Task, RuleID: spec.RuleID, Tables: slices.Clone(e.info.Tables)}, nil
}

// MustRegister is Register for compiled-in manifests; it panics on error.
func (r *Registry) MustRegister(spec RuleSpec) *Handle {
	h, err := r.Register(spec)
	if err != nil {
		panic(err)
	}
	return h
}

func validateNames(spec RuleSpec) error {
	var errs []error
	if !namePattern.MatchString(spec.Task) {
		errs = append(errs, fmt.Errorf("task name %q must match %s", spec.Task, namePattern))
	}
	if !namePattern.MatchString(spec.RuleID) {
		errs = append(errs, fmt.Errorf("rule id %q must match %s", spec.RuleID, namePattern))
	}
	return errors.Join(errs...)
}

func buildEntry(spec RuleSpec) (*entry, error) {
	kind := spec.Kind
	if kind == "" {
		kind = core.KindFormal
	}
	if _, ok := core.ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	severity := spec.Severity.OrDefault()
	if !severity.Valid() {
		return nil, fmt.Errorf("unknown severity %q", spec.Severity)
	}
	if spec.Tolerance < 0 {
		return nil, fmt.Errorf("tolerance must be >= 0, got %g", spec.Tolerance)
	}

	targets := spec.Targets
	if spec.Table != "" {
		targets = append([]Target{{Table: spec.Table, New: spec.New}}, targets...)
	}
	if len(targets) == 0 {
		return nil, errors.New("no target table")
	}

	e := &entry{info: Info{
		Task:      spec.Task,
		RuleID:    spec.RuleID,
		Check:     spec.Check,
		Kind:      kind,
		Severity:  severity,
		Tolerance: spec.Tolerance,
	}}
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.Table]; dup {
			return nil, fmt.Errorf("table %q targeted twice", t.Table)
		}
		seen[t.Table] = struct{}{}

		factory := t.New
		if factory == nil {
			factory = spec.New
		}
		if factory == nil {
			return nil, fmt.Errorf("no rule constructor for table %q", t.Table)
		}

		rule, err := factory(core.RuleMeta{
			Task:      spec.Task,
			RuleID:    spec.RuleID,
			Table:     t.Table,
			Kind:      kind,
			Severity:  severity,
			Tolerance: spec.Tolerance,
		})
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Table, err)
		}
		if !executable(rule) {
			return nil, fmt.Errorf("table %q: rule %T is neither a query rule nor a row-set rule", t.Table, rule)
		}
		e.rules = append(e.rules, rule)
		e.info.Tables = append(e.info.Tables, t.Table)
	}
	return e, nil
}

func executable(rule core.Rule) bool {
	switch rule.(type) {
	case core.QueryRule, core.RowSetRule:
		return true
	}
	return false
}

// RulesFor returns the rule instances of task in registration order.
// An unknown task yields an empty slice.
func (r *Registry) RulesFor(task string) []core.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Rule
	for _, e := range r.byTask[task] {
		out = append(out, e.rules...)
	}
	return out
}

// HasTask reports whether any rule is registered for task.
func (r *Registry) HasTask(task string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byTask[task]
	return ok
}

// AllTasks returns the task names in first-registration order.
func (r *Registry) AllTasks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tasks)
}

// AllRuleIDs returns the distinct rule ids across all tasks, sorted.
func (r *Registry) AllRuleIDs() []string {
	return r.collect(func(e *entry) []string { return []string{e.info.RuleID} })
}

// AllTables returns the distinct target tables across all tasks, sorted.
func (r *Registry) AllTables() []string {
	return r.collect(func(e *entry) []string { return e.info.Tables })
}

// RuleIDsByKind returns the distinct rule ids of the given kind, sorted.
func (r *Registry) RuleIDsByKind(kind core.Kind) []string {
	return r.collect(func(e *entry) []string {
		if e.info.Kind != kind {
			return nil
		}
		return []string{e.info.RuleID}
	})
}

func (r *Registry) collect(pick func(*entry) []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{})
	for _, entries := range r.byTask {
		for _, e := range entries {
			for _, v := range pick(e) {
				set[v] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// List returns one Info per registration, ordered by task then registration.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Info
	for _, task := range r.tasks {
		for _, e := range r.byTask[task] {
			info := e.info
			info.Tables = slices.Clone(e.info.Tables)
			out = append(out, info)
		}
	}
	return out
}

// Count returns the number of rule instances across all tasks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, entries := range r.byTask {
		for _, e := range entries {
			n += len(e.rules)
		}
	}
	return n
}
