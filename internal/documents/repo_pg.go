package documents

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, deal_id, user_id, file_name, mime_type, size_bytes, storage_key, extracted_text, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	var extracted sql.NullString
	if doc.ExtractedText != "" {
		extracted = sql.NullString{String: doc.ExtractedText, Valid: true}
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.DealID,
		doc.UserID,
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		doc.StorageKey,
		extracted,
		doc.CreatedAt,
	)
	return err
}

// GetByID fetches a document by ID for a user.
func (r *PGRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	const query = `
SELECT id, deal_id, user_id, file_name, mime_type, size_bytes, storage_key, extracted_text, created_at
FROM documents
WHERE user_id = $1 AND id = $2
LIMIT 1`
	var doc Document
	var extracted sql.NullString
	err := r.DB.QueryRowContext(ctx, query, userID, documentID).Scan(
		&doc.ID,
		&doc.DealID,
		&doc.UserID,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.StorageKey,
		&extracted,
		&doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	if extracted.Valid {
		doc.ExtractedText = extracted.String
	}
	return doc, nil
}

// ListByDeal lists documents for a deal ordered newest-first.
func (r *PGRepo) ListByDeal(ctx context.Context, userID, dealID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, deal_id, user_id, file_name, mime_type, size_bytes, storage_key, extracted_text, created_at
FROM documents
WHERE user_id = $1 AND deal_id = $2
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`

	rows, err := r.DB.QueryContext(ctx, query, userID, dealID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		var extracted sql.NullString
		if err := rows.Scan(
			&doc.ID,
			&doc.DealID,
			&doc.UserID,
			&doc.FileName,
			&doc.MimeType,
			&doc.SizeBytes,
			&doc.StorageKey,
			&extracted,
			&doc.CreatedAt,
		); err != nil {
			return nil, err
		}
		if extracted.Valid {
			doc.ExtractedText = extracted.String
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// ListIDsByDeal returns document IDs for a deal in a stable order.
func (r *PGRepo) ListIDsByDeal(ctx context.Context, dealID string) ([]string, error) {
	const query = `
SELECT id FROM documents
WHERE deal_id = $1
ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListTextsByDeal returns extracted texts for a deal in upload order.
func (r *PGRepo) ListTextsByDeal(ctx context.Context, dealID string) ([]string, error) {
	const query = `
SELECT extracted_text FROM documents
WHERE deal_id = $1 AND extracted_text IS NOT NULL
ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
