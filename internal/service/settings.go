package service

import (
	"context"
	"errors"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
	"github.com/TheHatt/revboard/pkg/validator"
)

// EffectiveSettings are a tenant's settings with the timezone resolved.
type EffectiveSettings struct {
	domain.Settings
	Location *time.Location
}

// SettingsProvider returns the settings in effect for a tenant.
type SettingsProvider interface {
	Effective(ctx context.Context, tenantID string) EffectiveSettings
}

// UpdateSettingsInput holds the parameters for changing dashboard settings.
type UpdateSettingsInput struct {
	Timezone        string `json:"timezone" validate:"required,timezone"`
	KeywordsEnabled *bool  `json:"keywords_enabled" validate:"required"`
	TopKeywords     int    `json:"top_keywords" validate:"gte=1,lte=100"`
}

// SettingsService implements the admin settings surface and resolves the
// per-tenant settings the other services depend on.
type SettingsService struct {
	repo     repository.SettingsRepository
	cache    repository.StatsCache
	defaults domain.Settings
	logger   *slog.Logger
}

// NewSettingsService creates a new settings service. defaults apply to
// tenants without stored settings.
func NewSettingsService(repo repository.SettingsRepository, cache repository.StatsCache, defaults domain.Settings, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		repo:     repo,
		cache:    cache,
		defaults: defaults,
		logger:   logger,
	}
}

// Effective returns the tenant's settings, falling back to the defaults
// when none are stored or they cannot be read.
func (s *SettingsService) Effective(ctx context.Context, tenantID string) EffectiveSettings {
	settings, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "using default dashboard settings",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
		}
		d := s.defaults
		d.TenantID = tenantID
		settings = &d
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return EffectiveSettings{Settings: *settings, Location: loc}
}

// Get returns the effective settings of the caller's tenant. Admin only.
func (s *SettingsService) Get(ctx context.Context, scope *domain.AccessScope) (*domain.Settings, error) {
	if err := RequireAdminRole(scope.Role); err != nil {
		return nil, err
	}
	eff := s.Effective(ctx, scope.TenantID)
	return &eff.Settings, nil
}

// Update stores new settings for the caller's tenant. Admin only. Cached
// statistics of the tenant are dropped because they depend on the settings.
func (s *SettingsService) Update(ctx context.Context, scope *domain.AccessScope, input UpdateSettingsInput) (*domain.Settings, error) {
	if err := RequireAdminRole(scope.Role); err != nil {
		return nil, err
	}
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	settings := &domain.Settings{
		TenantID:        scope.TenantID,
		Timezone:        input.Timezone,
		KeywordsEnabled: *input.KeywordsEnabled,
		TopKeywords:     input.TopKeywords,
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, scope.TenantID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate stats cache",
			slog.String("tenant_id", scope.TenantID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "dashboard settings updated",
		slog.String("tenant_id", scope.TenantID),
		slog.String("user_id", scope.UserID),
		slog.String("timezone", settings.Timezone),
	)

	return settings, nil
}
