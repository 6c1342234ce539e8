package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// CreateSession inserts a pending session row.
func (r *PGRepo) CreateSession(ctx context.Context, s Session) error {
	const query = `
INSERT INTO analysis_sessions (id, deal_id, user_id, mode, status, tiers, results, success,
	headline_score, limitations, total_cost_usd, duration_ms, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	tiers, err := json.Marshal(s.Tiers)
	if err != nil {
		return err
	}
	results, err := marshalResults(s.Results)
	if err != nil {
		return err
	}
	limitations, err := json.Marshal(s.Limitations)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		s.ID,
		s.DealID,
		s.UserID,
		s.Mode,
		s.Status,
		tiers,
		results,
		s.Success,
		s.HeadlineScore,
		limitations,
		s.TotalCostUSD,
		s.DurationMs,
		s.CreatedAt,
		s.CompletedAt,
	)
	return err
}

// FinishSession records the terminal state of a pending session.
func (r *PGRepo) FinishSession(ctx context.Context, s Session) error {
	const query = `
UPDATE analysis_sessions
SET status = $2, tiers = $3, results = $4, success = $5, headline_score = $6,
	limitations = $7, total_cost_usd = $8, duration_ms = $9, completed_at = $10
WHERE id = $1 AND status = 'pending'`
	tiers, err := json.Marshal(s.Tiers)
	if err != nil {
		return err
	}
	results, err := marshalResults(s.Results)
	if err != nil {
		return err
	}
	limitations, err := json.Marshal(s.Limitations)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query,
		s.ID,
		s.Status,
		tiers,
		results,
		s.Success,
		s.HeadlineScore,
		limitations,
		s.TotalCostUSD,
		s.DurationMs,
		s.CompletedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return err
}

// GetSession returns a session by ID.
func (r *PGRepo) GetSession(ctx context.Context, sessionID string) (Session, error) {
	const query = `
SELECT id, deal_id, user_id, mode, status, tiers, results, success,
	headline_score, limitations, total_cost_usd, duration_ms, created_at, completed_at
FROM analysis_sessions
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, sessionID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

// ListSessionsByDeal returns sessions for a deal, newest first.
func (r *PGRepo) ListSessionsByDeal(ctx context.Context, dealID string, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, deal_id, user_id, mode, status, tiers, results, success,
	headline_score, limitations, total_cost_usd, duration_ms, created_at, completed_at
FROM analysis_sessions
WHERE deal_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, dealID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateVersion appends an immutable numbered version. Numbering is
// serialized per deal by locking the deal row.
func (r *PGRepo) CreateVersion(ctx context.Context, v Version) (Version, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Version{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT id FROM deals WHERE id = $1 FOR UPDATE`, v.DealID); err != nil {
		return Version{}, err
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM analysis_versions WHERE deal_id = $1`, v.DealID,
	).Scan(&next); err != nil {
		return Version{}, err
	}
	v.Number = next
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	session, err := json.Marshal(v.Session)
	if err != nil {
		return Version{}, err
	}
	docIDs, err := json.Marshal(v.DocumentIDs)
	if err != nil {
		return Version{}, err
	}

	const query = `
INSERT INTO analysis_versions (deal_id, number, session, document_ids, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, query, v.DealID, v.Number, session, docIDs, v.CreatedAt); err != nil {
		return Version{}, err
	}
	if err := tx.Commit(); err != nil {
		return Version{}, err
	}
	return v, nil
}

// GetVersion returns one version by number.
func (r *PGRepo) GetVersion(ctx context.Context, dealID string, number int) (Version, error) {
	const query = `
SELECT deal_id, number, session, document_ids, created_at
FROM analysis_versions
WHERE deal_id = $1 AND number = $2
LIMIT 1`
	return r.scanVersion(r.DB.QueryRowContext(ctx, query, dealID, number))
}

// LatestVersion returns the most recent version for a deal.
func (r *PGRepo) LatestVersion(ctx context.Context, dealID string) (Version, error) {
	const query = `
SELECT deal_id, number, session, document_ids, created_at
FROM analysis_versions
WHERE deal_id = $1
ORDER BY number DESC
LIMIT 1`
	return r.scanVersion(r.DB.QueryRowContext(ctx, query, dealID))
}

func (r *PGRepo) scanVersion(row *sql.Row) (Version, error) {
	var v Version
	var session, docIDs []byte
	err := row.Scan(&v.DealID, &v.Number, &session, &docIDs, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Version{}, ErrNotFound
		}
		return Version{}, err
	}
	if err := json.Unmarshal(session, &v.Session); err != nil {
		return Version{}, err
	}
	if err := json.Unmarshal(docIDs, &v.DocumentIDs); err != nil {
		return Version{}, err
	}
	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var tiers, results, limitations []byte
	var headlineScore sql.NullFloat64
	var completedAt sql.NullTime
	err := row.Scan(
		&s.ID,
		&s.DealID,
		&s.UserID,
		&s.Mode,
		&s.Status,
		&tiers,
		&results,
		&s.Success,
		&headlineScore,
		&limitations,
		&s.TotalCostUSD,
		&s.DurationMs,
		&s.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return Session{}, err
	}
	if len(tiers) > 0 {
		if err := json.Unmarshal(tiers, &s.Tiers); err != nil {
			return Session{}, err
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &s.Results); err != nil {
			return Session{}, err
		}
	}
	if len(limitations) > 0 {
		if err := json.Unmarshal(limitations, &s.Limitations); err != nil {
			return Session{}, err
		}
	}
	if headlineScore.Valid {
		v := headlineScore.Float64
		s.HeadlineScore = &v
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return s, nil
}

func marshalResults(results map[string]AgentResult) ([]byte, error) {
	if results == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(results)
}
