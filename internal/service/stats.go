package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/TheHatt/revboard/internal/daterange"
	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
	"github.com/TheHatt/revboard/pkg/tracing"
)

// DefaultStatsRange is applied when a stats request names no range at all.
const DefaultStatsRange = string(daterange.Preset30d)

// StatsQuery are the statistics filters as received from the client.
type StatsQuery struct {
	Range    string
	From     string
	To       string
	Location string
	// Weekday (0=Sunday..6=Saturday) narrows only the weekday histogram.
	Weekday string
	Query   string
}

// StatsService computes the dashboard statistics.
type StatsService struct {
	reviews   repository.ReviewRepository
	locations repository.LocationRepository
	cache     repository.StatsCache
	settings  SettingsProvider
	now       func() time.Time
	logger    *slog.Logger
}

// NewStatsService creates a new stats service. cache may be nil.
func NewStatsService(
	reviews repository.ReviewRepository,
	locations repository.LocationRepository,
	cache repository.StatsCache,
	settings SettingsProvider,
	now func() time.Time,
	logger *slog.Logger,
) *StatsService {
	if now == nil {
		now = time.Now
	}
	return &StatsService{
		reviews:   reviews,
		locations: locations,
		cache:     cache,
		settings:  settings,
		now:       now,
		logger:    logger,
	}
}

// ComputeStats aggregates the reviews visible in scope that match q.
func (s *StatsService) ComputeStats(ctx context.Context, scope *domain.AccessScope, q StatsQuery) (*domain.Stats, error) {
	start := time.Now()
	eff := s.settings.Effective(ctx, scope.TenantID)

	if q.Range == "" && q.From == "" && q.To == "" {
		q.Range = DefaultStatsRange
	}

	weekday, err := parseWeekday(q.Weekday)
	if err != nil {
		return nil, err
	}

	r, err := buildRange(daterange.NewBuilder(eff.Location, s.now), q.Range, q.From, q.To)
	if err != nil {
		return nil, err
	}

	locationID, ok := resolveLocation(scope, q.Location)
	if !ok || scope.AllowsNothing() {
		return domain.EmptyStats(), nil
	}

	filter := scopedFilter(scope)
	filter.LocationID = locationID
	filter.Query = optionalString(q.Query)
	applyRange(&filter, r)

	key := s.cacheKey(filter, q, weekday, eff)
	if stats, hit := s.cached(ctx, scope.TenantID, key); hit {
		statsDuration.WithLabelValues("hit").Observe(time.Since(start).Seconds())
		return stats, nil
	}

	stats, err := s.compute(ctx, scope, filter, weekday, eff)
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}

	s.store(ctx, scope.TenantID, key, stats)
	statsDuration.WithLabelValues("miss").Observe(time.Since(start).Seconds())

	return stats, nil
}

// compute fans the aggregate reads out concurrently. They do not share a
// snapshot, so reviews ingested mid-request can make the histograms differ
// slightly from the totals.
func (s *StatsService) compute(ctx context.Context, scope *domain.AccessScope, filter repository.ReviewFilter, weekday *int, eff EffectiveSettings) (_ *domain.Stats, err error) {
	ctx, span := tracing.Start(ctx, "revboard/service", "StatsService.compute",
		attribute.String("tenant_id", scope.TenantID),
		attribute.Bool("keywords", eff.KeywordsEnabled),
	)
	defer func() { tracing.End(span, err) }()

	var (
		total      int
		answered   int
		avg        *float64
		ratings    []repository.GroupCount
		locRatings []repository.GroupCount
		rows       []repository.StatRow
		keywords   []domain.KeywordCount
		keywordErr error
	)

	answeredFilter := filter
	answeredFilter.Status = domain.StatusAnswered

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = s.reviews.CountReviews(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		answered, err = s.reviews.CountReviews(gctx, answeredFilter)
		return err
	})
	g.Go(func() (err error) {
		avg, err = s.reviews.AggregateAvgRating(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		ratings, err = s.reviews.GroupCountBy(gctx, filter, repository.GroupByRating)
		return err
	})
	g.Go(func() (err error) {
		locRatings, err = s.reviews.GroupCountBy(gctx, filter, repository.GroupByLocation, repository.GroupByRating)
		return err
	})
	g.Go(func() (err error) {
		rows, err = s.reviews.ListStatRows(gctx, filter)
		return err
	})
	if eff.KeywordsEnabled {
		g.Go(func() error {
			texts, err := s.reviews.ListTexts(gctx, filter)
			if err != nil {
				keywordErr = err
				return nil
			}
			keywords = topKeywords(texts, eff.TopKeywords)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := domain.EmptyStats()
	stats.TotalReviews = total
	stats.AnsweredCount = answered
	stats.UnansweredCount = total - answered
	if total > 0 {
		stats.ReplyRate = float64(answered) / float64(total)
	}
	if avg != nil {
		stats.AvgRating = round2(*avg)
	}

	starCounts(stats, ratings)
	stats.ByLocationStars = locationStars(locRatings, s.locationNames(ctx, scope, locRatings))
	summarizeRows(rows, eff.Location, weekday).apply(stats)

	if keywordErr != nil {
		keywordDegraded.Inc()
		s.logger.WarnContext(ctx, "serving stats without keywords",
			slog.String("tenant_id", scope.TenantID),
			slog.String("error", keywordErr.Error()),
		)
	} else if len(keywords) > 0 {
		stats.TopKeywords = keywords
	}

	return stats, nil
}

// locationNames maps the grouped location ids to display names, looking up
// ids the scope does not list.
func (s *StatsService) locationNames(ctx context.Context, scope *domain.AccessScope, groups []repository.GroupCount) map[string]string {
	names := make(map[string]string, len(scope.LocationOptions))
	for _, o := range scope.LocationOptions {
		names[o.ID] = o.Label
	}

	var missing []string
	seen := make(map[string]bool)
	for _, g := range groups {
		if _, ok := names[g.LocationID]; ok || seen[g.LocationID] {
			continue
		}
		seen[g.LocationID] = true
		missing = append(missing, g.LocationID)
	}
	if len(missing) == 0 {
		return names
	}

	locations, err := s.locations.FindByIDs(ctx, scope.TenantID, missing)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve location names",
			slog.String("tenant_id", scope.TenantID),
			slog.String("error", err.Error()),
		)
		return names
	}
	for _, l := range locations {
		names[l.ID] = l.Name
	}
	return names
}

type statsCacheKey struct {
	Range       string   `json:"range"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Day         string   `json:"day"`
	LocationID  *string  `json:"location_id"`
	LocationIDs []string `json:"location_ids"`
	Weekday     *int     `json:"weekday"`
	Query       *string  `json:"q"`
	Timezone    string   `json:"tz"`
	Keywords    bool     `json:"keywords"`
	TopKeywords int      `json:"top_keywords"`
}

// cacheKey identifies a result by its request inputs and the current local
// day, so relative ranges roll over at midnight.
func (s *StatsService) cacheKey(filter repository.ReviewFilter, q StatsQuery, weekday *int, eff EffectiveSettings) string {
	b, _ := json.Marshal(statsCacheKey{
		Range:       q.Range,
		From:        q.From,
		To:          q.To,
		Day:         s.now().In(eff.Location).Format(daterange.DateLayout),
		LocationID:  filter.LocationID,
		LocationIDs: filter.LocationIDs,
		Weekday:     weekday,
		Query:       filter.Query,
		Timezone:    eff.Timezone,
		Keywords:    eff.KeywordsEnabled,
		TopKeywords: eff.TopKeywords,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *StatsService) cached(ctx context.Context, tenantID, key string) (*domain.Stats, bool) {
	if s.cache == nil {
		return nil, false
	}
	stats, ok, err := s.cache.Get(ctx, tenantID, key)
	if err != nil {
		statsCacheResults.WithLabelValues("error").Inc()
		s.logger.WarnContext(ctx, "stats cache read failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !ok {
		statsCacheResults.WithLabelValues("miss").Inc()
		return nil, false
	}
	statsCacheResults.WithLabelValues("hit").Inc()
	return stats, true
}

func (s *StatsService) store(ctx context.Context, tenantID, key string, stats *domain.Stats) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, tenantID, key, stats); err != nil {
		s.logger.WarnContext(ctx, "stats cache write failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
}

// parseWeekday accepts "" or 0..6.
func parseWeekday(raw string) (*int, error) {
	if raw == "" || raw == allValue {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 6 {
		return nil, apperrors.InvalidInput("weekday must be between 0 (Sunday) and 6 (Saturday)")
	}
	return &n, nil
}
