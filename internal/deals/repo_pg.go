package deals

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new deal.
func (r *PGRepo) Create(ctx context.Context, deal Deal) error {
	const query = `
INSERT INTO deals (id, user_id, company_name, sector, stage, description, ask_usd, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.DB.ExecContext(ctx, query,
		deal.ID,
		deal.UserID,
		deal.CompanyName,
		deal.Sector,
		deal.Stage,
		deal.Description,
		deal.AskUSD,
		deal.CreatedAt,
		deal.UpdatedAt,
	)
	return err
}

// GetByID returns a deal by ID scoped to a user.
func (r *PGRepo) GetByID(ctx context.Context, userID, dealID string) (Deal, error) {
	const query = `
SELECT id, user_id, company_name, sector, stage, description, ask_usd, created_at, updated_at
FROM deals
WHERE id = $1 AND user_id = $2
LIMIT 1`
	var d Deal
	var description sql.NullString
	var askUSD sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, query, dealID, userID).Scan(
		&d.ID,
		&d.UserID,
		&d.CompanyName,
		&d.Sector,
		&d.Stage,
		&description,
		&askUSD,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, err
	}
	d.Description = description.String
	if askUSD.Valid {
		v := askUSD.Float64
		d.AskUSD = &v
	}
	return d, nil
}

// ListByUser returns deals for a user, newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Deal, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, user_id, company_name, sector, stage, description, ask_usd, created_at, updated_at
FROM deals
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Deal{}
	for rows.Next() {
		var d Deal
		var description sql.NullString
		var askUSD sql.NullFloat64
		if err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.CompanyName,
			&d.Sector,
			&d.Stage,
			&description,
			&askUSD,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		d.Description = description.String
		if askUSD.Valid {
			v := askUSD.Float64
			d.AskUSD = &v
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
