package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/pkg/database"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
)

// SettingsRepository implements repository.SettingsRepository using PostgreSQL.
type SettingsRepository struct {
	pool database.DBTX
}

// NewSettingsRepository creates a new PostgreSQL-backed settings repository.
func NewSettingsRepository(pool database.DBTX) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the stored settings of a tenant.
func (r *SettingsRepository) Get(ctx context.Context, tenantID string) (_ *domain.Settings, err error) {
	query := `
		SELECT tenant_id, timezone, keywords_enabled, top_keywords, updated_at
		FROM dashboard_settings
		WHERE tenant_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetSettings", query)
	defer func() { end(err) }()

	var s domain.Settings
	err = r.pool.QueryRow(ctx, query, tenantID).Scan(
		&s.TenantID,
		&s.Timezone,
		&s.KeywordsEnabled,
		&s.TopKeywords,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("settings for tenant", tenantID)
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	return &s, nil
}

// Upsert stores the settings of a tenant and sets UpdatedAt.
func (r *SettingsRepository) Upsert(ctx context.Context, s *domain.Settings) (err error) {
	query := `
		INSERT INTO dashboard_settings (tenant_id, timezone, keywords_enabled, top_keywords, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			keywords_enabled = EXCLUDED.keywords_enabled,
			top_keywords = EXCLUDED.top_keywords,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at`

	ctx, end := database.TraceQuery(ctx, "UpsertSettings", query)
	defer func() { end(err) }()

	err = r.pool.QueryRow(ctx, query, s.TenantID, s.Timezone, s.KeywordsEnabled, s.TopKeywords).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
