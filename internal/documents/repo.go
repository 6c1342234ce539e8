package documents

import "context"

// Repo defines persistence operations for documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, userID, documentID string) (Document, error)
	ListByDeal(ctx context.Context, userID, dealID string, limit, offset int) ([]Document, error)
	ListIDsByDeal(ctx context.Context, dealID string) ([]string, error)
	ListTextsByDeal(ctx context.Context, dealID string) ([]string, error)
}
