package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipsmith/clipsmith/internal/content"
)

// GenerationRow is one persisted generation batch.
type GenerationRow struct {
	ID        uuid.UUID               `json:"id"`
	Format    string                  `json:"format"`
	Tone      string                  `json:"tone,omitempty"`
	Purpose   string                  `json:"purpose,omitempty"`
	Passes    int                     `json:"passes"`
	Items     []content.GeneratedItem `json:"items"`
	CreatedAt time.Time               `json:"createdAt"`
}

// SaveGeneration persists a completed batch and returns its id.
func (s *Store) SaveGeneration(ctx context.Context, format content.Format, tone, purpose string, result content.GenerationResult) (uuid.UUID, error) {
	items, err := json.Marshal(result.Items)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal items: %w", err)
	}

	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO generations (id, format, tone, purpose, passes, generator_model, critic_model, items, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		id, string(format), tone, purpose, result.PassMeta.Passes,
		result.PassMeta.GeneratorModel, result.PassMeta.CriticModel, items,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert generation: %w", err)
	}
	return id, nil
}

// RecentGenerations returns the newest batches first, capped at limit.
func (s *Store) RecentGenerations(ctx context.Context, limit int) ([]GenerationRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, format, tone, purpose, passes, items, created_at
		FROM generations
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var out []GenerationRow
	for rows.Next() {
		var row GenerationRow
		var items []byte
		if err := rows.Scan(&row.ID, &row.Format, &row.Tone, &row.Purpose, &row.Passes, &items, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		if err := json.Unmarshal(items, &row.Items); err != nil {
			return nil, fmt.Errorf("decode generation items: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
