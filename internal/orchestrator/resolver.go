package orchestrator

import (
	"sort"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
)

// ResolveTiers computes the tiered execution order for the requested
// descriptors. Every dependency of an agent lands in a strictly earlier
// tier; names in completed count as satisfied without being scheduled.
// Tier contents are sorted by agent name so identical inputs always yield
// identical plans. Pure function, no side effects.
func ResolveTiers(requested []agents.Descriptor, completed map[string]struct{}) ([][]string, error) {
	byName := make(map[string]agents.Descriptor, len(requested))
	for _, d := range requested {
		byName[d.Name] = d
	}

	// Unsatisfiable references fail the whole run before any scheduling.
	for _, d := range requested {
		for _, dep := range d.DependsOn {
			if _, ok := byName[dep]; ok {
				continue
			}
			if _, ok := completed[dep]; ok {
				continue
			}
			return nil, &UnresolvableDependencyError{Agent: d.Name, Missing: dep}
		}
	}

	resolved := make(map[string]struct{}, len(completed))
	for name := range completed {
		resolved[name] = struct{}{}
	}

	remaining := make(map[string]agents.Descriptor, len(byName))
	for name, d := range byName {
		remaining[name] = d
	}

	var tiers [][]string
	for len(remaining) > 0 {
		var tier []string
		for name, d := range remaining {
			ready := true
			for _, dep := range d.DependsOn {
				if _, ok := resolved[dep]; !ok {
					if _, scheduled := remaining[dep]; scheduled {
						ready = false
						break
					}
				}
			}
			if ready {
				tier = append(tier, name)
			}
		}
		if len(tier) == 0 {
			// Every remaining agent waits on another remaining agent.
			names := make([]string, 0, len(remaining))
			for name := range remaining {
				names = append(names, name)
			}
			sort.Strings(names)
			return nil, &DependencyCycleError{Member: names[0]}
		}
		sort.Strings(tier)
		for _, name := range tier {
			resolved[name] = struct{}{}
			delete(remaining, name)
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}
