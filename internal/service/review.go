package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TheHatt/revboard/internal/daterange"
	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	"github.com/TheHatt/revboard/pkg/pagination"
)

// Page size bounds of the review list.
const (
	DefaultPageSize = 12
	MaxPageSize     = 50
)

// ListParams are the review list filters as received from the client.
type ListParams struct {
	Range    string
	From     string
	To       string
	Rating   string
	Status   string
	Location string
	Query    string
	Take     string
	Cursor   string
}

// ReviewPage is one page of the review list.
type ReviewPage = pagination.Page[domain.ReviewItem]

// ReviewService implements the review list.
type ReviewService struct {
	repo     repository.ReviewRepository
	settings SettingsProvider
	now      func() time.Time
	logger   *slog.Logger
}

// NewReviewService creates a new review service. Date presets are resolved
// in the tenant's timezone as reported by settings.
func NewReviewService(repo repository.ReviewRepository, settings SettingsProvider, now func() time.Time, logger *slog.Logger) *ReviewService {
	if now == nil {
		now = time.Now
	}
	return &ReviewService{
		repo:     repo,
		settings: settings,
		now:      now,
		logger:   logger,
	}
}

// List returns one page of reviews visible in scope, newest first.
func (s *ReviewService) List(ctx context.Context, scope *domain.AccessScope, p ListParams) (*ReviewPage, error) {
	take := pagination.Take(p.Take, DefaultPageSize, MaxPageSize)

	rating, err := parseRating(p.Rating)
	if err != nil {
		return nil, err
	}

	eff := s.settings.Effective(ctx, scope.TenantID)
	r, err := buildRange(daterange.NewBuilder(eff.Location, s.now), p.Range, p.From, p.To)
	if err != nil {
		return nil, err
	}

	locationID, ok := resolveLocation(scope, p.Location)
	if !ok || scope.AllowsNothing() {
		return &ReviewPage{Items: []domain.ReviewItem{}}, nil
	}

	filter := scopedFilter(scope)
	filter.LocationID = locationID
	filter.Rating = rating
	filter.Status = domain.ParseReviewStatus(p.Status)
	filter.Query = optionalString(p.Query)
	applyRange(&filter, r)

	cursor, err := decodeReviewCursor(p.Cursor)
	if err != nil {
		// A cursor we cannot read restarts the listing at the first page.
		if !errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, err
		}
		s.logger.WarnContext(ctx, "ignoring malformed review cursor",
			slog.String("tenant_id", scope.TenantID),
			slog.String("cursor", p.Cursor),
		)
		cursor = nil
	}

	reviews, err := s.repo.FindReviews(ctx, filter, cursor, take+1)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	page := pagination.Map(pagination.Trim(reviews, take, reviewCursor), domain.NewReviewItem)
	return &page, nil
}

// ListLocations returns the locations the scope may filter by.
func (s *ReviewService) ListLocations(scope *domain.AccessScope) []domain.LocationOption {
	if scope.LocationOptions == nil {
		return []domain.LocationOption{}
	}
	return scope.LocationOptions
}
