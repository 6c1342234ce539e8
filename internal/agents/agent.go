package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
)

// ErrInvalidPayload indicates the completion output did not match the
// expected structured shape even after lenient parsing.
var ErrInvalidPayload = errors.New("agent payload invalid")

// Payload is the typed envelope every agent produces. The orchestrator only
// reads the scoring and completeness fields; Data stays opaque.
type Payload struct {
	Data                json.RawMessage
	Score               *float64
	ExpectedDataPoints  int
	AvailableDataPoints int
	CompletenessRatio   *float64
	// CostUSD is the completion spend attributed to the producing attempt.
	CostUSD float64
}

// ExecutionContext is the immutable input bundle one agent attempt receives.
// Prior holds payloads of successfully completed agents from strictly
// earlier tiers, keyed by agent name. Agents must treat it as read-only.
type ExecutionContext struct {
	Deal         deals.Deal
	DocumentText string
	Prior        map[string]Payload
	Reference    json.RawMessage
	Facts        json.RawMessage
}

// Dependency returns the payload of a prior agent and whether it is present.
// A declared dependency that failed permanently is simply absent; agents are
// expected to degrade rather than error.
func (ec ExecutionContext) Dependency(name string) (Payload, bool) {
	p, ok := ec.Prior[name]
	return p, ok
}

// Agent is the capability contract one analysis task implements.
type Agent interface {
	Descriptor() Descriptor
	Run(ctx context.Context, ec ExecutionContext) (Payload, error)
}

type payloadEnvelope struct {
	Score               *float64 `json:"score"`
	ExpectedDataPoints  int      `json:"expectedDataPoints"`
	AvailableDataPoints int      `json:"availableDataPoints"`
	CompletenessRatio   *float64 `json:"completenessRatio"`
}

// ParsePayload decodes a raw completion output into a Payload. The full
// object is retained as Data; the envelope fields are lifted for scoring.
func ParsePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return Payload{}, fmt.Errorf("%w: empty output", ErrInvalidPayload)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Payload{}, fmt.Errorf("%w: not a JSON object: %v", ErrInvalidPayload, err)
	}
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Payload{}, fmt.Errorf("%w: envelope fields: %v", ErrInvalidPayload, err)
	}
	if env.Score != nil && (*env.Score < 0 || *env.Score > 100) {
		return Payload{}, fmt.Errorf("%w: score %v out of range", ErrInvalidPayload, *env.Score)
	}
	if env.CompletenessRatio != nil && (*env.CompletenessRatio < 0 || *env.CompletenessRatio > 1) {
		return Payload{}, fmt.Errorf("%w: completenessRatio %v out of range", ErrInvalidPayload, *env.CompletenessRatio)
	}
	p := Payload{
		Data:                raw,
		Score:               env.Score,
		ExpectedDataPoints:  env.ExpectedDataPoints,
		AvailableDataPoints: env.AvailableDataPoints,
		CompletenessRatio:   env.CompletenessRatio,
	}
	if p.ExpectedDataPoints == 0 && p.CompletenessRatio == nil {
		p.ExpectedDataPoints, p.AvailableDataPoints = countDataPoints(probe)
	}
	return p, nil
}

// countDataPoints derives expected/available counts from the top-level
// fields of the payload when the agent did not self-report completeness.
func countDataPoints(fields map[string]json.RawMessage) (expected, available int) {
	for key, val := range fields {
		switch key {
		case "score", "expectedDataPoints", "availableDataPoints", "completenessRatio":
			continue
		}
		expected++
		if isPopulated(val) {
			available++
		}
	}
	return expected, available
}

func isPopulated(raw json.RawMessage) bool {
	s := string(raw)
	switch s {
	case "", "null", `""`, "[]", "{}":
		return false
	}
	return true
}
