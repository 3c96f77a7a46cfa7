package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
)

// ErrNoMembership is returned when a user belongs to no tenant.
var ErrNoMembership = &apperrors.AppError{
	Code:    "NO_MEMBERSHIP",
	Message: "user is not a member of any tenant",
	Status:  http.StatusForbidden,
	Err:     apperrors.ErrForbidden,
}

// ScopeService derives the access scope of a user.
type ScopeService struct {
	memberships repository.MembershipRepository
	locations   repository.LocationRepository
	logger      *slog.Logger
}

// NewScopeService creates a new scope service.
func NewScopeService(memberships repository.MembershipRepository, locations repository.LocationRepository, logger *slog.Logger) *ScopeService {
	return &ScopeService{
		memberships: memberships,
		locations:   locations,
		logger:      logger,
	}
}

// ResolveScope picks the user's tenant and allowed locations.
//
// With activeTenantID set the user must be a member of that tenant. Otherwise
// a single membership wins; among several, the first tenant (by id) holding
// explicit location grants is preferred, else the first membership. Grants
// for the chosen tenant form a strict allow-list; without grants every
// location of the tenant is allowed. claimed narrows the result further when
// the session token carries its own location list.
func (s *ScopeService) ResolveScope(ctx context.Context, userID, activeTenantID string, claimed []string) (*domain.AccessScope, error) {
	memberships, err := s.memberships.ListMemberships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve scope: %w", err)
	}
	if len(memberships) == 0 {
		return nil, ErrNoMembership
	}

	grants, err := s.memberships.ListLocationGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve scope: %w", err)
	}

	membership, err := chooseMembership(memberships, grants, activeTenantID)
	if err != nil {
		return nil, err
	}

	scope := &domain.AccessScope{
		UserID:   userID,
		TenantID: membership.TenantID,
		Role:     membership.Role,
	}

	for _, g := range grants {
		if g.TenantID != membership.TenantID {
			continue
		}
		scope.AllowedLocationIDs = append(scope.AllowedLocationIDs, g.LocationID)
		scope.LocationOptions = append(scope.LocationOptions, domain.LocationOption{ID: g.LocationID, Label: g.LocationName})
	}

	if len(scope.AllowedLocationIDs) == 0 {
		locations, err := s.locations.ListByTenant(ctx, membership.TenantID)
		if err != nil {
			return nil, fmt.Errorf("resolve scope: %w", err)
		}
		for _, l := range locations {
			scope.AllowedLocationIDs = append(scope.AllowedLocationIDs, l.ID)
			scope.LocationOptions = append(scope.LocationOptions, domain.LocationOption{ID: l.ID, Label: l.Name})
		}
	}

	if len(claimed) > 0 {
		narrow(scope, claimed)
	}
	if scope.LocationOptions == nil {
		scope.LocationOptions = []domain.LocationOption{}
	}

	return scope, nil
}

func chooseMembership(memberships []domain.Membership, grants []domain.LocationGrant, activeTenantID string) (domain.Membership, error) {
	if activeTenantID != "" {
		for _, m := range memberships {
			if m.TenantID == activeTenantID {
				return m, nil
			}
		}
		return domain.Membership{}, apperrors.Forbidden("user is not a member of the active tenant")
	}

	if len(memberships) == 1 {
		return memberships[0], nil
	}

	granted := make(map[string]bool, len(grants))
	for _, g := range grants {
		granted[g.TenantID] = true
	}
	for _, m := range memberships {
		if granted[m.TenantID] {
			return m, nil
		}
	}
	return memberships[0], nil
}

// narrow keeps only the locations also listed in claimed. A claim that
// shares nothing with the stored scope leaves a scope that allows nothing.
func narrow(scope *domain.AccessScope, claimed []string) {
	ids := make([]string, 0, len(scope.AllowedLocationIDs))
	opts := make([]domain.LocationOption, 0, len(scope.LocationOptions))
	for _, o := range scope.LocationOptions {
		if slices.Contains(claimed, o.ID) {
			ids = append(ids, o.ID)
			opts = append(opts, o)
		}
	}
	scope.AllowedLocationIDs = ids
	scope.LocationOptions = opts
	scope.NoLocations = len(ids) == 0
}

// CheckLocationScope fails with Forbidden when locationID is outside a
// restrictive scope.
func CheckLocationScope(scope *domain.AccessScope, locationID string) error {
	if !scope.Allows(locationID) {
		return apperrors.Forbidden("location is outside your scope")
	}
	return nil
}

// RequireWriteRole fails with Forbidden for read-only roles.
func RequireWriteRole(role domain.Role) error {
	if !role.CanWrite() {
		return apperrors.Forbidden("your role does not allow replying")
	}
	return nil
}

// RequireAdminRole fails with Forbidden for every role but admin.
func RequireAdminRole(role domain.Role) error {
	if role != domain.RoleAdmin {
		return apperrors.Forbidden("admin only")
	}
	return nil
}
