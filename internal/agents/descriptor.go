package agents

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Complexity selects the completion model class used for an agent.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// Descriptor is the static metadata for one analysis agent. Descriptors are
// defined at process start and never mutated.
type Descriptor struct {
	Name       string
	DependsOn  []string
	Complexity Complexity
	MaxRetries int
	Timeout    time.Duration
}

// Validate checks descriptor invariants.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("agent name is required")
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("agent %s: maxRetries must be >= 0", d.Name)
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("agent %s: timeout must be > 0", d.Name)
	}
	switch d.Complexity {
	case ComplexitySimple, ComplexityComplex:
	default:
		return fmt.Errorf("agent %s: unknown complexity %q", d.Name, d.Complexity)
	}
	for _, dep := range d.DependsOn {
		if dep == d.Name {
			return fmt.Errorf("agent %s: depends on itself", d.Name)
		}
	}
	return nil
}
