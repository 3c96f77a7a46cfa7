package service

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// --- In-memory review store ---

// memReviews evaluates review filters in memory.
type memReviews struct {
	mu        sync.Mutex
	reviews   []domain.Review
	locations map[string]string
	replies   map[string]string

	textsErr error
	countErr error
	queries  atomic.Int32
}

func newMemReviews(locations map[string]string, reviews ...domain.Review) *memReviews {
	return &memReviews{
		reviews:   reviews,
		locations: locations,
		replies:   make(map[string]string),
	}
}

func (m *memReviews) match(r domain.Review, f repository.ReviewFilter) bool {
	if r.TenantID != f.TenantID {
		return false
	}
	if f.LocationID != nil && r.LocationID != *f.LocationID {
		return false
	}
	if len(f.LocationIDs) > 0 && !slices.Contains(f.LocationIDs, r.LocationID) {
		return false
	}
	if f.Rating != nil && r.Rating != *f.Rating {
		return false
	}
	switch f.Status {
	case domain.StatusOpen:
		if r.AnsweredAt != nil {
			return false
		}
	case domain.StatusAnswered:
		if r.AnsweredAt == nil {
			return false
		}
	}
	if f.PublishedFrom != nil && r.PublishedAt.Before(*f.PublishedFrom) {
		return false
	}
	if f.PublishedTo != nil && r.PublishedAt.After(*f.PublishedTo) {
		return false
	}
	if f.Query != nil {
		if r.Text == nil || !strings.Contains(strings.ToLower(*r.Text), strings.ToLower(*f.Query)) {
			return false
		}
	}
	return true
}

func (m *memReviews) matching(f repository.ReviewFilter) []domain.Review {
	m.queries.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Review
	for _, r := range m.reviews {
		if m.match(r, f) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memReviews) GetByID(_ context.Context, id string) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, apperrors.NotFound("review", id)
}

func (m *memReviews) FindReviews(_ context.Context, f repository.ReviewFilter, cursor *repository.ReviewCursor, limit int) ([]domain.Review, error) {
	rows := m.matching(f)
	slices.SortFunc(rows, func(a, b domain.Review) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	out := []domain.Review{}
	for _, r := range rows {
		if cursor != nil {
			after := r.PublishedAt.Before(cursor.PublishedAt) ||
				(r.PublishedAt.Equal(cursor.PublishedAt) && r.ID < cursor.ID)
			if !after {
				continue
			}
		}
		r.LocationName = m.locations[r.LocationID]
		if text, ok := m.replies[r.ID]; ok {
			r.ReplyText = &text
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memReviews) CountReviews(_ context.Context, f repository.ReviewFilter) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.matching(f)), nil
}

func (m *memReviews) AggregateAvgRating(_ context.Context, f repository.ReviewFilter) (*float64, error) {
	rows := m.matching(f)
	if len(rows) == 0 {
		return nil, nil
	}
	sum := 0
	for _, r := range rows {
		sum += r.Rating
	}
	avg := float64(sum) / float64(len(rows))
	return &avg, nil
}

func (m *memReviews) GroupCountBy(_ context.Context, f repository.ReviewFilter, fields ...repository.GroupField) ([]repository.GroupCount, error) {
	type key struct {
		rating   int
		location string
	}
	counts := make(map[key]int)
	var order []key
	for _, r := range m.matching(f) {
		var k key
		for _, field := range fields {
			switch field {
			case repository.GroupByRating:
				k.rating = r.Rating
			case repository.GroupByLocation:
				k.location = r.LocationID
			}
		}
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		counts[k]++
	}

	out := make([]repository.GroupCount, 0, len(order))
	for _, k := range order {
		out = append(out, repository.GroupCount{Rating: k.rating, LocationID: k.location, Count: counts[k]})
	}
	return out, nil
}

func (m *memReviews) ListStatRows(_ context.Context, f repository.ReviewFilter) ([]repository.StatRow, error) {
	var out []repository.StatRow
	for _, r := range m.matching(f) {
		out = append(out, repository.StatRow{Rating: r.Rating, PublishedAt: r.PublishedAt, AnsweredAt: r.AnsweredAt})
	}
	return out, nil
}

func (m *memReviews) ListTexts(_ context.Context, f repository.ReviewFilter) ([]string, error) {
	if m.textsErr != nil {
		return nil, m.textsErr
	}
	var out []string
	for _, r := range m.matching(f) {
		if r.Text != nil && strings.TrimSpace(*r.Text) != "" {
			out = append(out, *r.Text)
		}
	}
	return out, nil
}

func (m *memReviews) Upsert(_ context.Context, review *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, *review)
	return nil
}

// --- Mock Reply Repository ---

type mockReplyRepository struct {
	mock.Mock
}

func (m *mockReplyRepository) GetByReviewID(ctx context.Context, reviewID string) (*domain.Reply, error) {
	args := m.Called(ctx, reviewID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reply), args.Error(1)
}

func (m *mockReplyRepository) Save(ctx context.Context, tenantID string, reply *domain.Reply, allowEdit bool) error {
	args := m.Called(ctx, tenantID, reply, allowEdit)
	return args.Error(0)
}

// --- Mock Location Repository ---

type mockLocationRepository struct {
	mock.Mock
}

func (m *mockLocationRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.Location, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).([]domain.Location), args.Error(1)
}

func (m *mockLocationRepository) FindByIDs(ctx context.Context, tenantID string, ids []string) ([]domain.Location, error) {
	args := m.Called(ctx, tenantID, ids)
	return args.Get(0).([]domain.Location), args.Error(1)
}

func (m *mockLocationRepository) Upsert(ctx context.Context, location *domain.Location) error {
	args := m.Called(ctx, location)
	return args.Error(0)
}

// --- Mock Membership Repository ---

type mockMembershipRepository struct {
	mock.Mock
}

func (m *mockMembershipRepository) ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Membership), args.Error(1)
}

func (m *mockMembershipRepository) ListLocationGrants(ctx context.Context, userID string) ([]domain.LocationGrant, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.LocationGrant), args.Error(1)
}

// --- Mock Settings Repository ---

type mockSettingsRepository struct {
	mock.Mock
}

func (m *mockSettingsRepository) Get(ctx context.Context, tenantID string) (*domain.Settings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Settings), args.Error(1)
}

func (m *mockSettingsRepository) Upsert(ctx context.Context, settings *domain.Settings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

// --- Fakes ---

// memCache is a StatsCache backed by a map.
type memCache struct {
	mu          sync.Mutex
	entries     map[string]*domain.Stats
	invalidated []string
	err         error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*domain.Stats)}
}

func (c *memCache) Get(_ context.Context, tenantID, key string) (*domain.Stats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	s, ok := c.entries[tenantID+"/"+key]
	return s, ok, nil
}

func (c *memCache) Set(_ context.Context, tenantID, key string, stats *domain.Stats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.entries[tenantID+"/"+key] = stats
	return nil
}

func (c *memCache) Invalidate(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, tenantID)
	for k := range c.entries {
		if strings.HasPrefix(k, tenantID+"/") {
			delete(c.entries, k)
		}
	}
	return c.err
}

// staticSettings returns the same settings for every tenant.
type staticSettings struct {
	eff EffectiveSettings
}

func newStaticSettings(loc *time.Location, keywords bool) staticSettings {
	return staticSettings{eff: EffectiveSettings{
		Settings: domain.Settings{
			Timezone:        loc.String(),
			KeywordsEnabled: keywords,
			TopKeywords:     20,
		},
		Location: loc,
	}}
}

func (s staticSettings) Effective(_ context.Context, tenantID string) EffectiveSettings {
	eff := s.eff
	eff.TenantID = tenantID
	return eff
}
