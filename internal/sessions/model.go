package sessions

import (
	"encoding/json"
	"time"
)

// Session status values. A session transitions out of pending exactly once.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Per-agent error kinds recorded on failed results.
const (
	ErrorCodeTimeout    = "TIMEOUT"
	ErrorCodeProvider   = "PROVIDER_ERROR"
	ErrorCodeValidation = "VALIDATION_ERROR"
	ErrorCodeCancelled  = "CANCELLED"
)

// Completeness levels assigned by the aggregator.
const (
	CompletenessComplete = "complete"
	CompletenessPartial  = "partial"
	CompletenessMinimal  = "minimal"
)

// AgentResult is the immutable outcome of one agent within a session.
// Score carries the completeness-capped value; RawScore the agent's own.
type AgentResult struct {
	AgentName    string          `json:"agentName"`
	Success      bool            `json:"success"`
	Attempts     int             `json:"attempts"`
	DurationMs   float64         `json:"durationMs"`
	CostUSD      float64         `json:"costUsd"`
	Data         json.RawMessage `json:"data,omitempty"`
	Score        *float64        `json:"score,omitempty"`
	RawScore     *float64        `json:"rawScore,omitempty"`
	Completeness string          `json:"completeness,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// Session is the full record of one orchestration run across all tiers.
type Session struct {
	ID            string                 `json:"id"`
	DealID        string                 `json:"dealId"`
	UserID        string                 `json:"userId"`
	Mode          string                 `json:"mode"`
	Status        string                 `json:"status"`
	Tiers         [][]string             `json:"tiers"`
	Results       map[string]AgentResult `json:"results"`
	Success       bool                   `json:"success"`
	HeadlineScore *float64               `json:"headlineScore,omitempty"`
	Limitations   []string               `json:"limitations,omitempty"`
	TotalCostUSD  float64                `json:"totalCostUsd"`
	DurationMs    float64                `json:"durationMs"`
	CreatedAt     time.Time              `json:"createdAt"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
}

// Version is a persisted, numbered, immutable session snapshot plus the
// document identifiers known for the deal when it was produced.
type Version struct {
	DealID      string    `json:"dealId"`
	Number      int       `json:"number"`
	Session     Session   `json:"session"`
	DocumentIDs []string  `json:"documentIds"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Staleness compares the latest version's document set against the deal's
// current one. Derived on demand, never stored.
type Staleness struct {
	IsStale          bool `json:"isStale"`
	NewDocumentCount int  `json:"newDocumentCount"`
	LatestVersion    int  `json:"latestVersion"`
}

// Delta is the signed headline-score difference between two versions.
type Delta struct {
	DealID        string   `json:"dealId"`
	FromVersion   int      `json:"fromVersion"`
	ToVersion     int      `json:"toVersion"`
	HeadlineDelta *float64 `json:"headlineDelta,omitempty"`
}
