package documents

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/extract"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/storage/object"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/telemetry"
)

// Service contains business logic for deal documents.
type Service struct {
	Store object.ObjectStore
	Repo  Repo
	Deals deals.Repo
}

// Upload saves the file to object storage, extracts its text and records the document.
// The deal must exist and belong to the user.
func (s *Service) Upload(ctx context.Context, userID, dealID, fileName string, r io.Reader) (Document, error) {
	if fileName == "" || dealID == "" {
		return Document{}, ErrInvalidInput
	}

	if _, err := s.Deals.GetByID(ctx, userID, dealID); err != nil {
		return Document{}, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, err
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, userID, fileName, bytes.NewReader(data))
	if err != nil {
		return Document{}, err
	}

	// Extraction failures do not block the upload; the document simply
	// contributes no text to later analysis runs.
	text, err := extract.ExtractTextFromBytes(ctx, data, mimeType, fileName)
	if err != nil {
		telemetry.Error("document.extract_failed", map[string]any{
			"deal_id":   dealID,
			"file_name": fileName,
			"error":     err.Error(),
		})
		text = ""
	}

	doc := Document{
		ID:            uuid.NewString(),
		DealID:        dealID,
		UserID:        userID,
		FileName:      fileName,
		MimeType:      mimeType,
		SizeBytes:     size,
		StorageKey:    storageKey,
		ExtractedText: text,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}

	return doc, nil
}

// Get returns a single document owned by the user.
func (s *Service) Get(ctx context.Context, userID, documentID string) (Document, error) {
	if userID == "" || documentID == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, userID, documentID)
}

// List returns documents for a deal owned by the user.
func (s *Service) List(ctx context.Context, userID, dealID string, limit, offset int) ([]Document, error) {
	if userID == "" || dealID == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.Deals.GetByID(ctx, userID, dealID); err != nil {
		return nil, err
	}
	return s.Repo.ListByDeal(ctx, userID, dealID, limit, offset)
}

// ListIDsByDeal returns the IDs of all documents currently attached to a deal.
func (s *Service) ListIDsByDeal(ctx context.Context, dealID string) ([]string, error) {
	return s.Repo.ListIDsByDeal(ctx, dealID)
}

// CombinedText concatenates the extracted text of every document on a deal,
// in upload order.
func (s *Service) CombinedText(ctx context.Context, dealID string) (string, error) {
	texts, err := s.Repo.ListTextsByDeal(ctx, dealID)
	if err != nil {
		return "", err
	}
	return strings.Join(texts, "\n\n"), nil
}
