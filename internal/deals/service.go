package deals

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidInput indicates a malformed create request.
var ErrInvalidInput = errors.New("invalid deal input")

// Service contains business logic for deals.
type Service struct {
	Repo Repo
}

// Create records a new deal for an investor.
func (s *Service) Create(ctx context.Context, userID, companyName, sector, stage, description string, askUSD *float64) (Deal, error) {
	if userID == "" {
		return Deal{}, errors.New("userID is required")
	}
	if strings.TrimSpace(companyName) == "" {
		return Deal{}, ErrInvalidInput
	}
	now := time.Now().UTC()
	deal := Deal{
		ID:          uuid.NewString(),
		UserID:      userID,
		CompanyName: strings.TrimSpace(companyName),
		Sector:      strings.TrimSpace(sector),
		Stage:       strings.TrimSpace(stage),
		Description: strings.TrimSpace(description),
		AskUSD:      askUSD,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.Create(ctx, deal); err != nil {
		return Deal{}, err
	}
	return deal, nil
}

// Get returns a deal scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, dealID string) (Deal, error) {
	if userID == "" || dealID == "" {
		return Deal{}, errors.New("userID and dealID are required")
	}
	return s.Repo.GetByID(ctx, userID, dealID)
}

// List returns deals for an investor, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Deal, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}
