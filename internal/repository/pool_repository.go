package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/campaign-engine/internal/model"
)

// PoolRepository is the recipient pool provider: the table of users the
// audience resolver streams through the rule evaluator. Keyset pagination
// keeps memory flat no matter the pool size.
type PoolRepository struct {
	DB       *sql.DB
	PageSize int
}

func (r *PoolRepository) pageSize() int {
	if r.PageSize > 0 {
		return r.PageSize
	}
	return 500
}

// Scanner starts a fresh streaming pass over the pool.
func (r *PoolRepository) Scanner() *PoolScanner {
	return &PoolScanner{repo: r}
}

type PoolScanner struct {
	repo   *PoolRepository
	cursor string
	done   bool
}

func (s *PoolScanner) NextPage(ctx context.Context) ([]model.PoolRecord, error) {
	if s.done {
		return nil, nil
	}
	query := `
        SELECT user_id, attributes FROM recipients
        WHERE user_id > $1 ORDER BY user_id LIMIT $2
    `
	rows, err := s.repo.DB.QueryContext(ctx, query, s.cursor, s.repo.pageSize())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []model.PoolRecord
	for rows.Next() {
		var rec model.PoolRecord
		var attrs []byte
		if err := rows.Scan(&rec.UserID, &attrs); err != nil {
			return nil, err
		}
		if err := fromJSON(attrs, &rec.Attributes); err != nil {
			return nil, err
		}
		page = append(page, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(page) < s.repo.pageSize() {
		s.done = true
	}
	if len(page) > 0 {
		s.cursor = page[len(page)-1].UserID
	}
	return page, nil
}

// Attributes fetches one user's attribute map for template rendering.
func (r *PoolRepository) Attributes(userID string) (map[string]any, error) {
	var attrs []byte
	err := r.DB.QueryRow(`SELECT attributes FROM recipients WHERE user_id=$1`, userID).Scan(&attrs)
	if err != nil {
		if err == sql.ErrNoRows {
			return map[string]any{}, nil
		}
		return nil, err
	}
	out := map[string]any{}
	if err := fromJSON(attrs, &out); err != nil {
		return nil, err
	}
	return out, nil
}
