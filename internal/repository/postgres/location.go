package postgres

import (
	"context"
	"fmt"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/pkg/database"
)

// LocationRepository implements repository.LocationRepository using PostgreSQL.
type LocationRepository struct {
	pool database.DBTX
}

// NewLocationRepository creates a new PostgreSQL-backed location repository.
func NewLocationRepository(pool database.DBTX) *LocationRepository {
	return &LocationRepository{pool: pool}
}

// ListByTenant returns all locations of a tenant ordered by name.
func (r *LocationRepository) ListByTenant(ctx context.Context, tenantID string) (_ []domain.Location, err error) {
	query := `SELECT id, tenant_id, name FROM locations WHERE tenant_id = $1 ORDER BY name, id`

	ctx, end := database.TraceQuery(ctx, "ListLocationsByTenant", query)
	defer func() { end(err) }()

	return r.list(ctx, query, tenantID)
}

// FindByIDs returns the tenant's locations among ids, ordered by name.
func (r *LocationRepository) FindByIDs(ctx context.Context, tenantID string, ids []string) (_ []domain.Location, err error) {
	if len(ids) == 0 {
		return []domain.Location{}, nil
	}

	query := `SELECT id, tenant_id, name FROM locations WHERE tenant_id = $1 AND id = ANY($2) ORDER BY name, id`

	ctx, end := database.TraceQuery(ctx, "FindLocationsByIDs", query)
	defer func() { end(err) }()

	return r.list(ctx, query, tenantID, ids)
}

// Upsert inserts a location or updates its name. A location id owned by
// another tenant is left untouched.
func (r *LocationRepository) Upsert(ctx context.Context, loc *domain.Location) (err error) {
	query := `
		INSERT INTO locations (id, tenant_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		WHERE locations.tenant_id = EXCLUDED.tenant_id`

	ctx, end := database.TraceQuery(ctx, "UpsertLocation", query)
	defer func() { end(err) }()

	if _, err = r.pool.Exec(ctx, query, loc.ID, loc.TenantID, loc.Name); err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}
	return nil
}

func (r *LocationRepository) list(ctx context.Context, query string, args ...any) ([]domain.Location, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	locations := []domain.Location{}
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Name); err != nil {
			return nil, fmt.Errorf("scan location row: %w", err)
		}
		locations = append(locations, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate location rows: %w", err)
	}

	return locations, nil
}
