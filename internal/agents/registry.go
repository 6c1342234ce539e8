package agents

import (
	"fmt"
	"sort"
)

// Registry holds the static agent set for the process. Built once at
// startup, read-only afterwards.
type Registry struct {
	byName map[string]Agent
}

// NewRegistry validates descriptors and builds a Registry. Every declared
// dependency must name another registered agent.
func NewRegistry(list ...Agent) (*Registry, error) {
	byName := make(map[string]Agent, len(list))
	for _, a := range list {
		desc := a.Descriptor()
		if err := desc.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[desc.Name]; dup {
			return nil, fmt.Errorf("duplicate agent %s", desc.Name)
		}
		byName[desc.Name] = a
	}
	for _, a := range byName {
		for _, dep := range a.Descriptor().DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("agent %s depends on unknown agent %s", a.Descriptor().Name, dep)
			}
		}
	}
	return &Registry{byName: byName}, nil
}

// Get returns the agent with the given name.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Descriptors returns the descriptors for the named agents, failing on any
// unknown name.
func (r *Registry) Descriptors(names []string) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		a, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown agent %s", name)
		}
		out = append(out, a.Descriptor())
	}
	return out, nil
}

// Names returns all registered agent names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
