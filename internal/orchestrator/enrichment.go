package orchestrator

import (
	"encoding/json"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
)

// ContextBuilder assembles the per-attempt ExecutionContext for an agent.
// The subject data, document text, reference bundle, and fact set are fixed
// for the run; the prior-result map is supplied per attempt and holds the
// payloads of earlier tiers only, never same-tier siblings.
type ContextBuilder struct {
	Deal         deals.Deal
	DocumentText string
	Reference    json.RawMessage
	Facts        json.RawMessage
}

// Build snapshots the context for one attempt. prior must contain only
// payloads of agents from strictly earlier tiers; failed dependencies are
// simply absent rather than represented as errors.
func (b *ContextBuilder) Build(prior map[string]agents.Payload) agents.ExecutionContext {
	return agents.ExecutionContext{
		Deal:         b.Deal,
		DocumentText: b.DocumentText,
		Prior:        prior,
		Reference:    b.Reference,
		Facts:        b.Facts,
	}
}
