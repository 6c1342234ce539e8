package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProvider wraps failures of the completion service itself: transport
// errors, provider-reported errors, or output that stayed malformed after
// the provider-side repair pass.
var ErrProvider = errors.New("completion provider error")

// ErrNotConfigured is returned by the placeholder client.
var ErrNotConfigured = errors.New("completion client not configured")

// Request describes one completion call.
type Request struct {
	Instruction string
	Temperature float32
	// Complexity selects the model class, "simple" or "complex".
	Complexity string
}

// Result is the structured outcome of one completion call.
type Result struct {
	Payload          json.RawMessage
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Client abstracts the text-completion provider. Implementations must
// return a syntactically valid JSON payload or an error wrapping
// ErrProvider; lenient repair of free-text output is a provider concern.
type Client interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

// Placeholder is a stub client used until a provider is wired.
type Placeholder struct{}

// Complete returns ErrNotConfigured.
func (Placeholder) Complete(ctx context.Context, req Request) (Result, error) {
	_ = ctx
	_ = req
	return Result{}, fmt.Errorf("%w: %v", ErrProvider, ErrNotConfigured)
}
