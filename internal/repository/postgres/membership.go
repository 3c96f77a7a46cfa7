package postgres

import (
	"context"
	"fmt"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/pkg/database"
)

// MembershipRepository implements repository.MembershipRepository using PostgreSQL.
type MembershipRepository struct {
	pool database.DBTX
}

// NewMembershipRepository creates a new PostgreSQL-backed membership repository.
func NewMembershipRepository(pool database.DBTX) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

// ListMemberships returns the user's tenant memberships ordered by tenant id.
func (r *MembershipRepository) ListMemberships(ctx context.Context, userID string) (_ []domain.Membership, err error) {
	query := `SELECT user_id, tenant_id, role FROM memberships WHERE user_id = $1 ORDER BY tenant_id`

	ctx, end := database.TraceQuery(ctx, "ListMemberships", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	memberships := []domain.Membership{}
	for rows.Next() {
		var (
			m    domain.Membership
			role string
		)
		if err := rows.Scan(&m.UserID, &m.TenantID, &role); err != nil {
			return nil, fmt.Errorf("scan membership row: %w", err)
		}
		m.Role = domain.ParseRole(role)
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate membership rows: %w", err)
	}

	return memberships, nil
}

// ListLocationGrants returns the user's explicit location grants with the
// owning tenant and location name, ordered by location id.
func (r *MembershipRepository) ListLocationGrants(ctx context.Context, userID string) (_ []domain.LocationGrant, err error) {
	query := `
		SELECT la.user_id, la.location_id, l.tenant_id, l.name
		FROM location_access la
		JOIN locations l ON l.id = la.location_id
		WHERE la.user_id = $1
		ORDER BY la.location_id`

	ctx, end := database.TraceQuery(ctx, "ListLocationGrants", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list location grants: %w", err)
	}
	defer rows.Close()

	grants := []domain.LocationGrant{}
	for rows.Next() {
		var g domain.LocationGrant
		if err := rows.Scan(&g.UserID, &g.LocationID, &g.TenantID, &g.LocationName); err != nil {
			return nil, fmt.Errorf("scan location grant row: %w", err)
		}
		grants = append(grants, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate location grant rows: %w", err)
	}

	return grants, nil
}
