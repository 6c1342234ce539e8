package orchestrator

import (
	"fmt"
	"strings"
)

// UnresolvableDependencyError rejects a run whose requested agent set
// references an agent that is neither requested nor already complete.
type UnresolvableDependencyError struct {
	Agent   string
	Missing string
}

func (e *UnresolvableDependencyError) Error() string {
	return fmt.Sprintf("agent %s depends on %s which is not part of the run", e.Agent, e.Missing)
}

// DependencyCycleError rejects a run whose dependency graph contains a
// cycle. Member names one agent on the cycle.
type DependencyCycleError struct {
	Member string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving agent %s", e.Member)
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
