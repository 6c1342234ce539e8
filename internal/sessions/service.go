package sessions

import (
	"context"
	"errors"
	"time"
)

// DocumentLister reports the current document identifiers for a deal. The
// documents feature provides the implementation.
type DocumentLister interface {
	ListIDsByDeal(ctx context.Context, dealID string) ([]string, error)
}

// Store persists resolved sessions as immutable versions and answers
// staleness and delta questions for a deal.
type Store struct {
	Repo Repo
	Docs DocumentLister
}

// CreateSession records a run in pending state.
func (s *Store) CreateSession(ctx context.Context, session Session) error {
	return s.Repo.CreateSession(ctx, session)
}

// GetSession returns one session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, errors.New("sessionID is required")
	}
	return s.Repo.GetSession(ctx, sessionID)
}

// ListSessions returns sessions for a deal, newest first.
func (s *Store) ListSessions(ctx context.Context, dealID string, limit, offset int) ([]Session, error) {
	if dealID == "" {
		return nil, errors.New("dealID is required")
	}
	return s.Repo.ListSessionsByDeal(ctx, dealID, limit, offset)
}

// Persist records the terminal session state and appends a new immutable
// version carrying the deal's current document-identifier snapshot. A
// session is persisted whether or not it succeeded.
func (s *Store) Persist(ctx context.Context, session Session) (Version, error) {
	if session.DealID == "" {
		return Version{}, errors.New("dealID is required")
	}
	docIDs, err := s.Docs.ListIDsByDeal(ctx, session.DealID)
	if err != nil {
		return Version{}, err
	}
	if err := s.Repo.FinishSession(ctx, session); err != nil {
		return Version{}, err
	}
	return s.Repo.CreateVersion(ctx, Version{
		DealID:      session.DealID,
		Session:     session,
		DocumentIDs: docIDs,
		CreatedAt:   time.Now().UTC(),
	})
}

// Latest returns the most recent version for a deal.
func (s *Store) Latest(ctx context.Context, dealID string) (Version, error) {
	if dealID == "" {
		return Version{}, errors.New("dealID is required")
	}
	return s.Repo.LatestVersion(ctx, dealID)
}

// Get returns one version by number.
func (s *Store) Get(ctx context.Context, dealID string, number int) (Version, error) {
	if dealID == "" {
		return Version{}, errors.New("dealID is required")
	}
	return s.Repo.GetVersion(ctx, dealID, number)
}

// CheckStaleness reports whether the deal has gained documents since the
// latest version was produced. Returns ErrNoAnalysis when no version exists.
func (s *Store) CheckStaleness(ctx context.Context, dealID string) (Staleness, error) {
	if dealID == "" {
		return Staleness{}, errors.New("dealID is required")
	}
	latest, err := s.Repo.LatestVersion(ctx, dealID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Staleness{}, ErrNoAnalysis
		}
		return Staleness{}, err
	}

	current, err := s.Docs.ListIDsByDeal(ctx, dealID)
	if err != nil {
		return Staleness{}, err
	}

	recorded := make(map[string]struct{}, len(latest.DocumentIDs))
	for _, id := range latest.DocumentIDs {
		recorded[id] = struct{}{}
	}
	newCount := 0
	for _, id := range current {
		if _, ok := recorded[id]; !ok {
			newCount++
		}
	}

	return Staleness{
		IsStale:          newCount > 0,
		NewDocumentCount: newCount,
		LatestVersion:    latest.Number,
	}, nil
}

// ComputeDelta returns the signed headline-score difference between two
// versions. Zero for either number means "latest" and "one before it".
func (s *Store) ComputeDelta(ctx context.Context, dealID string, from, to int) (Delta, error) {
	if dealID == "" {
		return Delta{}, errors.New("dealID is required")
	}

	var toVersion Version
	var err error
	if to == 0 {
		toVersion, err = s.Repo.LatestVersion(ctx, dealID)
	} else {
		toVersion, err = s.Repo.GetVersion(ctx, dealID, to)
	}
	if err != nil {
		return Delta{}, err
	}

	if from == 0 {
		from = toVersion.Number - 1
	}
	if from < 1 {
		return Delta{}, ErrNotFound
	}
	fromVersion, err := s.Repo.GetVersion(ctx, dealID, from)
	if err != nil {
		return Delta{}, err
	}

	delta := Delta{
		DealID:      dealID,
		FromVersion: fromVersion.Number,
		ToVersion:   toVersion.Number,
	}
	if fromVersion.Session.HeadlineScore != nil && toVersion.Session.HeadlineScore != nil {
		d := *toVersion.Session.HeadlineScore - *fromVersion.Session.HeadlineScore
		delta.HeadlineDelta = &d
	}
	return delta, nil
}
