package core

import (
	"slices"
	"strings"
)

// Task is one admitted, filter-surviving test case ready to be launched.
type Task struct {
	FullName []string
	Work     Assertion
	Opts     Options
}

// Name returns the display name: the root-to-leaf path joined by "::".
func (t *Task) Name() string {
	return strings.Join(t.FullName, "::")
}

// MakePlan flattens the test tree into an ordered list of tasks,
// applying the filter and skip-filter rules from cfg and resolving
// option inheritance. The output order is the depth-first leaf order
// of the input tree. An empty plan is a valid result.
func MakePlan(cfg *Config, t TestTree) []Task {
	var plan []Task
	planWalk(cfg, cfg.Filter, t, nil, Options{}, &plan)
	return plan
}

func planWalk(cfg *Config, filter string, t TestTree, path []string, parent Options, out *[]Task) {
	skip := skipApplies(cfg.SkipFilters, t.Name)
	effective := t.Opts.Inherit(parent)

	if t.IsLeaf() {
		if skip || !nameMatches(t.Name, filter) {
			return
		}
		*out = append(*out, Task{
			FullName: append(slices.Clone(path), t.Name),
			Work:     t.Assertion,
			Opts:     effective,
		})
		return
	}

	// a matching fork admits its whole subtree by name
	if skip {
		return
	}
	if nameMatches(t.Name, filter) {
		filter = ""
	}
	path = append(slices.Clone(path), t.Name)
	for _, child := range t.Children {
		planWalk(cfg, filter, child, path, effective, out)
	}
}

// nameMatches is true if there is no filter, or name contains it.
func nameMatches(name, filter string) bool {
	return filter == "" || strings.Contains(name, filter)
}

func skipApplies(filters []string, name string) bool {
	for _, f := range filters {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}
