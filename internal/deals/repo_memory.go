package deals

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo, safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]Deal // userID -> deals
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string][]Deal)}
}

// Create stores the deal.
func (r *MemoryRepo) Create(ctx context.Context, deal Deal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[deal.UserID] = append(r.data[deal.UserID], deal)
	return nil
}

// GetByID returns a deal by ID for a user.
func (r *MemoryRepo) GetByID(ctx context.Context, userID, dealID string) (Deal, error) {
	if err := ctx.Err(); err != nil {
		return Deal{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.data[userID] {
		if d.ID == dealID {
			return d, nil
		}
	}
	return Deal{}, ErrNotFound
}

// ListByUser returns deals for a user, newest first, honoring limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Deal, error) {
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
	userDeals := r.data[userID]
	r.mu.RUnlock()

	if len(userDeals) == 0 || offset >= len(userDeals) {
		return []Deal{}, nil
	}

	out := make([]Deal, len(userDeals))
	copy(out, userDeals)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}
