package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/nava/pkg/core/types"
)

// AddHistory records an in-progress project for the account.
func (s *Store) AddHistory(ctx context.Context, accountID string, h types.ProjectHistory) (types.ProjectHistory, error) {
	h.ID = uuid.NewString()
	if h.Date.IsZero() {
		h.Date = time.Now().UTC()
	}
	if h.Status == "" {
		h.Status = types.ProjectInProgress
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO history (id, account_id, title, status, difficulty, thumbnail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, accountID, h.Title, string(h.Status), string(h.Difficulty), h.Thumbnail, h.Date)
	if err != nil {
		return types.ProjectHistory{}, fmt.Errorf("add history: %w", err)
	}
	return h, nil
}

// ListHistory returns the account's projects, newest first.
func (s *Store) ListHistory(ctx context.Context, accountID string) ([]types.ProjectHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, status, difficulty, thumbnail, created_at
		FROM history WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []types.ProjectHistory{}
	for rows.Next() {
		var (
			h                  types.ProjectHistory
			status, difficulty string
		)
		if err := rows.Scan(&h.ID, &h.Title, &status, &difficulty, &h.Thumbnail, &h.Date); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Status = types.ProjectStatus(status)
		h.Difficulty = types.Difficulty(difficulty)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// CompleteHistory marks one of the account's projects completed.
func (s *Store) CompleteHistory(ctx context.Context, accountID, id string) error {
	return s.execOne(ctx, "complete history",
		`UPDATE history SET status = $3 WHERE id = $1 AND account_id = $2`,
		id, accountID, string(types.ProjectCompleted))
}
