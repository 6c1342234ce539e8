package documents

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]Document // dealId -> documents
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string][]Document),
	}
}

// Create appends a document to its deal.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[doc.DealID] = append(r.data[doc.DealID], doc)
	return nil
}

// GetByID returns a document by ID for a user.
func (r *MemoryRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, docs := range r.data {
		for i := range docs {
			if docs[i].ID == documentID && docs[i].UserID == userID {
				return docs[i], nil
			}
		}
	}
	return Document{}, ErrNotFound
}

// ListByDeal returns documents for a deal, newest first, honoring limit/offset.
func (r *MemoryRepo) ListByDeal(ctx context.Context, userID, dealID string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	dealDocs := r.data[dealID]
	r.mu.RUnlock()

	var owned []Document
	for i := range dealDocs {
		if dealDocs[i].UserID == userID {
			owned = append(owned, dealDocs[i])
		}
	}

	if len(owned) == 0 || offset >= len(owned) {
		return []Document{}, nil
	}

	// Copy and sort newest-first by CreatedAt.
	docs := make([]Document, len(owned))
	copy(docs, owned)
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return docs[offset:end], nil
}

// ListIDsByDeal returns the IDs of all documents attached to a deal, sorted.
func (r *MemoryRepo) ListIDsByDeal(ctx context.Context, dealID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := r.data[dealID]
	ids := make([]string, 0, len(docs))
	for i := range docs {
		ids = append(ids, docs[i].ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListTextsByDeal returns extracted texts for a deal in upload order.
func (r *MemoryRepo) ListTextsByDeal(ctx context.Context, dealID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := r.data[dealID]
	texts := make([]string, 0, len(docs))
	for i := range docs {
		if docs[i].ExtractedText != "" {
			texts = append(texts, docs[i].ExtractedText)
		}
	}
	return texts, nil
}

var _ Repo = (*MemoryRepo)(nil)
