package quota

import "context"

type store interface {
	Get(ctx context.Context, userID string) (Quota, error)
	EnsurePeriod(ctx context.Context, userID string) (Quota, error)
	Consume(ctx context.Context, userID string, n int) (Quota, error)
	Reset(ctx context.Context, userID string) (Quota, error)
}

// Service manages analysis-run quotas via an underlying store.
type Service struct {
	store store
}

// NewService constructs a Service with in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// Get returns the current quota for a user, initializing defaults if absent.
func (s *Service) Get(ctx context.Context, userID string) (Quota, error) {
	return s.store.Get(ctx, userID)
}

// EnsurePeriod resets the quota if the period has expired.
func (s *Service) EnsurePeriod(ctx context.Context, userID string) (Quota, error) {
	return s.store.EnsurePeriod(ctx, userID)
}

// Consume increments usage by n if within limit, returning ErrLimitReached otherwise.
func (s *Service) Consume(ctx context.Context, userID string, n int) (Quota, error) {
	return s.store.Consume(ctx, userID, n)
}

// Reset sets usage to zero and restarts the window.
func (s *Service) Reset(ctx context.Context, userID string) (Quota, error) {
	return s.store.Reset(ctx, userID)
}
