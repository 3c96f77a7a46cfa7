package domain

import (
	"time"
)

// Settings are the per-tenant dashboard preferences. Tenants without a
// stored row use the service defaults.
type Settings struct {
	TenantID        string    `json:"tenant_id"`
	Timezone        string    `json:"timezone"`
	KeywordsEnabled bool      `json:"keywords_enabled"`
	TopKeywords     int       `json:"top_keywords"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}
