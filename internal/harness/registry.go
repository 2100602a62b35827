package harness

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Suite names understood by the runner. "all" is implicit.
const (
	SuiteAll        = "all"
	SuiteCore       = "core"
	SuiteAuth       = "auth"
	SuiteExtensions = "extensions"
	// Server-mode suites: "active" is the default set run against live
	// servers, "pending" holds scenarios awaiting specification
	// clarification.
	SuiteActive  = "active"
	SuitePending = "pending"
)

// Registry maps scenario names to definitions. It is built from a static
// list at startup, not ambient global state, and iterates in deterministic
// insertion order.
type Registry struct {
	order []string
	byNam map[string]Definition
}

// NewRegistry builds a registry from the given definitions. Duplicate
// names are a programming error.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{byNam: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds one definition.
func (r *Registry) Register(d Definition) error {
	if d.Name == "" {
		return fmt.Errorf("scenario definition missing name")
	}
	if d.Setup == nil {
		return fmt.Errorf("scenario %q missing setup", d.Name)
	}
	if _, exists := r.byNam[d.Name]; exists {
		return fmt.Errorf("scenario %q registered twice", d.Name)
	}
	r.byNam[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Get instantiates the named scenario with a fresh ledger and servers.
func (r *Registry) Get(name string, logger *zap.Logger) (Scenario, error) {
	d, ok := r.byNam[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (available: %v)", name, r.Names())
	}
	return d.NewInstance(logger), nil
}

// Definition returns the static definition for a name.
func (r *Registry) Definition(name string) (Definition, bool) {
	d, ok := r.byNam[name]
	return d, ok
}

// Names returns all scenario names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Suite returns the definitions belonging to the named suite, in
// registration order. "all" returns everything.
func (r *Registry) Suite(suite string) []Definition {
	var out []Definition
	for _, name := range r.order {
		d := r.byNam[name]
		if suite == SuiteAll || contains(d.Suites, suite) {
			out = append(out, d)
		}
	}
	return out
}

// Suites returns the distinct suite names seen across all definitions,
// sorted, with "all" first.
func (r *Registry) Suites() []string {
	seen := map[string]bool{}
	for _, name := range r.order {
		for _, s := range r.byNam[name].Suites {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen)+1)
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return append([]string{SuiteAll}, out...)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
