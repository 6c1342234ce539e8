package analysis

import (
	"time"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/sessions"
)

// SessionResponse is the outward-facing representation of a run session.
type SessionResponse struct {
	SessionID     string                          `json:"sessionId"`
	DealID        string                          `json:"dealId"`
	Mode          string                          `json:"mode"`
	Status        string                          `json:"status"`
	Tiers         [][]string                      `json:"tiers"`
	Results       map[string]sessions.AgentResult `json:"results,omitempty"`
	Success       bool                            `json:"success"`
	HeadlineScore *float64                        `json:"headlineScore,omitempty"`
	Limitations   []string                        `json:"limitations,omitempty"`
	TotalCostUSD  float64                         `json:"totalCostUsd"`
	DurationMs    float64                         `json:"durationMs"`
	CreatedAt     time.Time                       `json:"createdAt"`
	CompletedAt   *time.Time                      `json:"completedAt,omitempty"`
}

func toResponse(s sessions.Session) SessionResponse {
	return SessionResponse{
		SessionID:     s.ID,
		DealID:        s.DealID,
		Mode:          s.Mode,
		Status:        s.Status,
		Tiers:         s.Tiers,
		Results:       s.Results,
		Success:       s.Success,
		HeadlineScore: s.HeadlineScore,
		Limitations:   s.Limitations,
		TotalCostUSD:  s.TotalCostUSD,
		DurationMs:    s.DurationMs,
		CreatedAt:     s.CreatedAt,
		CompletedAt:   s.CompletedAt,
	}
}
