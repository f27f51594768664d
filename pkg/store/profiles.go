package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vango-go/nava/pkg/core/types"
)

// GetProfile returns the account's profile, or nil when none has been saved.
func (s *Store) GetProfile(ctx context.Context, accountID string) (*types.UserProfile, error) {
	var (
		p     types.UserProfile
		skill string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT account_id, name, email, country, skill_level, color, joined_at
		FROM profiles WHERE account_id = $1`, accountID).
		Scan(&p.ID, &p.Name, &p.Email, &p.Country, &skill, &p.Color, &p.JoinedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.SkillLevel = types.SkillLevel(skill)
	return &p, nil
}

// SaveProfile merges update onto the stored profile (or an empty one) and
// writes the result.
func (s *Store) SaveProfile(ctx context.Context, accountID string, update types.UserProfile) (types.UserProfile, error) {
	current, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return types.UserProfile{}, err
	}
	base := types.UserProfile{ID: accountID, JoinedDate: time.Now().UTC()}
	if current != nil {
		base = *current
	}
	p := base.Merge(update)
	p.ID = accountID

	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (account_id, name, email, country, skill_level, color, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			country = EXCLUDED.country,
			skill_level = EXCLUDED.skill_level,
			color = EXCLUDED.color`,
		p.ID, p.Name, p.Email, p.Country, string(p.SkillLevel), p.Color, p.JoinedDate)
	if err != nil {
		return types.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}
