package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATALOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepo implements achievement.Provider over achievement_definitions.
// Wrap it with achievement.NewCachedProvider in production wiring; the
// catalog is read on every award evaluation pass.
type CatalogRepo struct {
	conn *Connection
}

// NewCatalogRepo creates a new CatalogRepo.
func NewCatalogRepo(conn *Connection) *CatalogRepo {
	return &CatalogRepo{conn: conn}
}

// Catalog returns all achievement definitions.
func (r *CatalogRepo) Catalog(ctx context.Context) ([]achievement.Definition, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, description, category, rarity, metric, threshold, reward_points
		FROM achievement_definitions
		ORDER BY category, threshold
	`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var defs []achievement.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Upsert inserts or updates one definition. Used by the admin surface.
func (r *CatalogRepo) Upsert(ctx context.Context, def achievement.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO achievement_definitions
			(id, name, description, category, rarity, metric, threshold, reward_points)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			rarity = EXCLUDED.rarity,
			metric = EXCLUDED.metric,
			threshold = EXCLUDED.threshold,
			reward_points = EXCLUDED.reward_points
	`,
		def.ID.String(),
		def.Name,
		def.Description,
		def.Category,
		def.Rarity.String(),
		def.Requirement.Metric.String(),
		def.Requirement.Threshold,
		def.RewardPoints,
	)
	if err != nil {
		return fmt.Errorf("upsert definition %s: %w", def.ID, err)
	}
	return nil
}

// Seed inserts the built-in catalog, skipping ids that already exist.
// Operator-edited rows are never overwritten. Returns the number of
// definitions inserted.
func (r *CatalogRepo) Seed(ctx context.Context) (int, error) {
	inserted := 0
	for _, def := range achievement.DefaultCatalog() {
		tag, err := r.conn.Exec(ctx, `
			INSERT INTO achievement_definitions
				(id, name, description, category, rarity, metric, threshold, reward_points)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`,
			def.ID.String(),
			def.Name,
			def.Description,
			def.Category,
			def.Rarity.String(),
			def.Requirement.Metric.String(),
			def.Requirement.Threshold,
			def.RewardPoints,
		)
		if err != nil {
			return inserted, fmt.Errorf("seed definition %s: %w", def.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func scanDefinition(rows pgx.Rows) (achievement.Definition, error) {
	var (
		def    achievement.Definition
		id     string
		rarity string
		metric string
	)
	err := rows.Scan(
		&id,
		&def.Name,
		&def.Description,
		&def.Category,
		&rarity,
		&metric,
		&def.Requirement.Threshold,
		&def.RewardPoints,
	)
	if err != nil {
		return achievement.Definition{}, fmt.Errorf("scan definition: %w", err)
	}
	def.ID = shared.AchievementID(id)
	def.Rarity = achievement.Rarity(rarity)
	def.Requirement.Metric = achievement.Metric(metric)
	return def, nil
}
