package sessions

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo stores sessions and versions in memory; safe for concurrent use.
type MemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byDeal   map[string][]string  // dealID -> session IDs, insertion order
	versions map[string][]Version // dealID -> versions, ascending number
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		sessions: make(map[string]Session),
		byDeal:   make(map[string][]string),
		versions: make(map[string][]Version),
	}
}

// CreateSession stores a pending session.
func (r *MemoryRepo) CreateSession(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.byDeal[s.DealID] = append(r.byDeal[s.DealID], s.ID)
	return nil
}

// GetSession returns a session by ID.
func (r *MemoryRepo) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// FinishSession records the terminal session state.
func (r *MemoryRepo) FinishSession(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	r.sessions[s.ID] = s
	return nil
}

// ListSessionsByDeal returns sessions for a deal, newest first.
func (r *MemoryRepo) ListSessionsByDeal(ctx context.Context, dealID string, limit, offset int) ([]Session, error) {
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
	ids := r.byDeal[dealID]
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.sessions[id])
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []Session{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// CreateVersion appends an immutable version, assigning the next number.
func (r *MemoryRepo) CreateVersion(ctx context.Context, v Version) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.versions[v.DealID]
	v.Number = len(existing) + 1
	v.DocumentIDs = append([]string(nil), v.DocumentIDs...)
	r.versions[v.DealID] = append(existing, v)
	return v, nil
}

// GetVersion returns one version by number.
func (r *MemoryRepo) GetVersion(ctx context.Context, dealID string, number int) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions[dealID] {
		if v.Number == number {
			return v, nil
		}
	}
	return Version{}, ErrNotFound
}

// LatestVersion returns the most recent version for a deal.
func (r *MemoryRepo) LatestVersion(ctx context.Context, dealID string) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.versions[dealID]
	if len(versions) == 0 {
		return Version{}, ErrNotFound
	}
	return versions[len(versions)-1], nil
}
