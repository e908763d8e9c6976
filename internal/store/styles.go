package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipsmith/clipsmith/internal/content"
)

// StyleRow is one persisted style profile with its source examples.
type StyleRow struct {
	ID        uuid.UUID            `json:"id"`
	Name      string               `json:"name"`
	Profile   content.StyleProfile `json:"profile"`
	Examples  []string             `json:"examples,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// SaveStyleProfile persists an analyzed profile alongside the examples
// it was derived from.
func (s *Store) SaveStyleProfile(ctx context.Context, name string, profile content.StyleProfile, examples []string) (uuid.UUID, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal profile: %w", err)
	}
	examplesJSON, _ := json.Marshal(examples)

	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO style_profiles (id, name, profile, examples, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		id, name, profileJSON, examplesJSON,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert style_profile: %w", err)
	}
	return id, nil
}

// ListStyleProfiles returns saved profiles, newest first.
func (s *Store) ListStyleProfiles(ctx context.Context, limit int) ([]StyleRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, profile, created_at
		FROM style_profiles
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query style_profiles: %w", err)
	}
	defer rows.Close()

	var out []StyleRow
	for rows.Next() {
		var row StyleRow
		var profile []byte
		if err := rows.Scan(&row.ID, &row.Name, &profile, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan style_profile: %w", err)
		}
		if err := json.Unmarshal(profile, &row.Profile); err != nil {
			return nil, fmt.Errorf("decode style profile: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
