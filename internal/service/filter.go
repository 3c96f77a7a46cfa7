package service

import (
	"strconv"
	"strings"

	"github.com/TheHatt/revboard/internal/daterange"
	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
)

// allValue selects no constraint for rating, status and location filters.
const allValue = "all"

// scopedFilter returns the tenant and location constraints every query of
// scope carries.
func scopedFilter(scope *domain.AccessScope) repository.ReviewFilter {
	f := repository.ReviewFilter{TenantID: scope.TenantID}
	if scope.Restricted() {
		f.LocationIDs = scope.AllowedLocationIDs
	}
	return f
}

// applyRange sets the publish-time bounds of f.
func applyRange(f *repository.ReviewFilter, r daterange.Range) {
	f.PublishedFrom = r.From
	f.PublishedTo = r.To
}

// buildRange wraps builder errors as invalid input.
func buildRange(b *daterange.Builder, preset, from, to string) (daterange.Range, error) {
	r, err := b.Build(preset, from, to)
	if err != nil {
		return daterange.Range{}, apperrors.InvalidInput(err.Error())
	}
	return r, nil
}

// parseRating accepts "", "all" or a star rating.
func parseRating(raw string) (*int, error) {
	if raw == "" || raw == allValue {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || !domain.ValidRating(n) {
		return nil, apperrors.InvalidInput("rating must be between 1 and 5 or \"all\"")
	}
	return &n, nil
}

// resolveLocation matches value against the scope's location options by id
// first, then by display name. ok is false when a location was requested
// that the scope does not contain.
func resolveLocation(scope *domain.AccessScope, value string) (id *string, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == allValue {
		return nil, true
	}
	for _, o := range scope.LocationOptions {
		if o.ID == value {
			return &o.ID, true
		}
	}
	for _, o := range scope.LocationOptions {
		if o.Label == value {
			return &o.ID, true
		}
	}
	return nil, false
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
