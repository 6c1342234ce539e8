package deals

import "context"

// Repo defines persistence operations for deals.
type Repo interface {
	Create(ctx context.Context, deal Deal) error
	GetByID(ctx context.Context, userID, dealID string) (Deal, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Deal, error)
}
