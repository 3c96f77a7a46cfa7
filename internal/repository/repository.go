package repository

import (
	"context"
	"time"

	"github.com/TheHatt/revboard/internal/domain"
)

// ReviewFilter defines filter criteria shared by review listing and statistics.
// TenantID is mandatory. LocationID and LocationIDs combine with AND.
type ReviewFilter struct {
	TenantID      string
	LocationID    *string
	LocationIDs   []string
	Rating        *int
	Status        domain.ReviewStatus
	PublishedFrom *time.Time
	PublishedTo   *time.Time
	Query         *string
}

// ReviewCursor is the keyset position of the last row of the previous page.
type ReviewCursor struct {
	PublishedAt time.Time
	ID          string
}

// GroupField is a column reviews can be grouped by.
type GroupField string

const (
	GroupByRating   GroupField = "rating"
	GroupByLocation GroupField = "location_id"
)

// GroupCount is one group of a GroupCountBy result. Only the fields that
// were grouped on are set.
type GroupCount struct {
	Rating     int
	LocationID string
	Count      int
}

// StatRow holds the per-review columns the statistics pass needs.
type StatRow struct {
	Rating      int
	PublishedAt time.Time
	AnsweredAt  *time.Time
}

// ReviewRepository defines the interface for review persistence operations.
type ReviewRepository interface {
	// GetByID retrieves a review by its unique identifier regardless of tenant.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// FindReviews returns up to limit reviews ordered by (published_at, id)
	// descending, strictly after cursor when one is given.
	FindReviews(ctx context.Context, filter ReviewFilter, cursor *ReviewCursor, limit int) ([]domain.Review, error)

	// CountReviews returns the number of reviews matching the filter.
	CountReviews(ctx context.Context, filter ReviewFilter) (int, error)

	// AggregateAvgRating returns the mean rating, or nil when nothing matches.
	AggregateAvgRating(ctx context.Context, filter ReviewFilter) (*float64, error)

	// GroupCountBy counts matching reviews grouped by the given fields.
	GroupCountBy(ctx context.Context, filter ReviewFilter, fields ...GroupField) ([]GroupCount, error)

	// ListStatRows returns rating and timestamps of every matching review.
	ListStatRows(ctx context.Context, filter ReviewFilter) ([]StatRow, error)

	// ListTexts returns the non-empty texts of matching reviews.
	ListTexts(ctx context.Context, filter ReviewFilter) ([]string, error)

	// Upsert inserts or updates an imported review. answered_at is never
	// touched by an import.
	Upsert(ctx context.Context, review *domain.Review) error
}

// ReplyRepository defines the interface for reply persistence operations.
type ReplyRepository interface {
	// GetByReviewID retrieves the reply of a review.
	GetByReviewID(ctx context.Context, reviewID string) (*domain.Reply, error)

	// Save writes the reply and sets the review's answered_at in one
	// transaction. Without allowEdit an existing reply yields a conflict.
	Save(ctx context.Context, tenantID string, reply *domain.Reply, allowEdit bool) error
}

// LocationRepository defines the interface for location persistence operations.
type LocationRepository interface {
	// ListByTenant returns every location of a tenant ordered by name.
	ListByTenant(ctx context.Context, tenantID string) ([]domain.Location, error)

	// FindByIDs returns the tenant's locations with the given ids.
	FindByIDs(ctx context.Context, tenantID string, ids []string) ([]domain.Location, error)

	// Upsert inserts a location or renames an existing one.
	Upsert(ctx context.Context, location *domain.Location) error
}

// MembershipRepository defines the interface for tenant membership lookups.
type MembershipRepository interface {
	// ListMemberships returns the user's memberships ordered by tenant id.
	ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error)

	// ListLocationGrants returns the user's explicit location grants ordered
	// by location id.
	ListLocationGrants(ctx context.Context, userID string) ([]domain.LocationGrant, error)
}

// SettingsRepository defines the interface for dashboard settings persistence.
type SettingsRepository interface {
	// Get returns the stored settings of a tenant.
	Get(ctx context.Context, tenantID string) (*domain.Settings, error)

	// Upsert stores the settings of a tenant.
	Upsert(ctx context.Context, settings *domain.Settings) error
}

// StatsCache stores computed statistics per tenant.
type StatsCache interface {
	// Get returns a cached result. ok is false on a miss.
	Get(ctx context.Context, tenantID, key string) (stats *domain.Stats, ok bool, err error)

	// Set stores a result for the cache's TTL.
	Set(ctx context.Context, tenantID, key string, stats *domain.Stats) error

	// Invalidate drops every cached result of a tenant.
	Invalidate(ctx context.Context, tenantID string) error
}
