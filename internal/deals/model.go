package deals

import "time"

// Deal represents one startup investment file owned by an investor.
type Deal struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	CompanyName string    `json:"companyName"`
	Sector      string    `json:"sector"`
	Stage       string    `json:"stage"`
	Description string    `json:"description,omitempty"`
	AskUSD      *float64  `json:"askUsd,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
