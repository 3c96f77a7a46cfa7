package domain

// Tenant is the isolation boundary: every review, location and membership
// belongs to exactly one tenant.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Plan string `json:"plan"`
}

// Location is a business site that receives reviews.
type Location struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// LocationOption is one entry of the location filter.
type LocationOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// UnknownLocationLabel is shown when a review's location cannot be resolved.
const UnknownLocationLabel = "—"
