package domain

import (
	"slices"
	"strings"
)

// Role is a user's permission level within a tenant.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// ParseRole normalizes a stored or claimed role. Unknown roles are treated
// as viewer so they never grant write access.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	default:
		return RoleViewer
	}
}

// CanWrite reports whether the role may create or edit replies.
func (r Role) CanWrite() bool {
	return r == RoleEditor || r == RoleAdmin
}

// Membership links a user to a tenant with a role.
type Membership struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
}

// LocationGrant is an explicit per-user location permission.
type LocationGrant struct {
	UserID       string `json:"user_id"`
	LocationID   string `json:"location_id"`
	TenantID     string `json:"tenant_id"`
	LocationName string `json:"location_name"`
}

// AccessScope is the effective permission set of one request. An empty
// AllowedLocationIDs means every location of the tenant unless NoLocations
// is set.
type AccessScope struct {
	UserID             string           `json:"user_id"`
	TenantID           string           `json:"tenant_id"`
	Role               Role             `json:"role"`
	AllowedLocationIDs []string         `json:"allowed_location_ids"`
	LocationOptions    []LocationOption `json:"location_options"`
	NoLocations        bool             `json:"no_locations,omitempty"`
}

// Restricted reports whether the scope is a strict location allow-list.
func (s *AccessScope) Restricted() bool {
	return s.NoLocations || len(s.AllowedLocationIDs) > 0
}

// AllowsNothing reports whether the scope excludes every location. Reads
// under such a scope are empty without touching storage.
func (s *AccessScope) AllowsNothing() bool {
	return s.NoLocations
}

// Allows reports whether locationID is inside the scope.
func (s *AccessScope) Allows(locationID string) bool {
	if s.NoLocations {
		return false
	}
	return !s.Restricted() || slices.Contains(s.AllowedLocationIDs, locationID)
}
