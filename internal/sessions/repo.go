package sessions

import "context"

// Repo defines persistence for in-flight sessions and immutable versions.
// Versions are append-only: CreateVersion assigns the next number per deal
// atomically and never overwrites.
type Repo interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
	// FinishSession records the terminal state of a pending session exactly
	// once; the stored results are never mutated afterwards.
	FinishSession(ctx context.Context, s Session) error
	ListSessionsByDeal(ctx context.Context, dealID string, limit, offset int) ([]Session, error)

	CreateVersion(ctx context.Context, v Version) (Version, error)
	GetVersion(ctx context.Context, dealID string, number int) (Version, error)
	LatestVersion(ctx context.Context, dealID string) (Version, error)
}
