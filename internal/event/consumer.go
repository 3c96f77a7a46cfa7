package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
	pkgkafka "github.com/TheHatt/revboard/pkg/kafka"
)

// ConsumerGroupID is the default consumer group of the ingest consumer.
const ConsumerGroupID = "revboard-ingest"

// ReviewIngestedData is the payload of a review.ingested event, emitted by
// the review importers for every new or changed review.
type ReviewIngestedData struct {
	ReviewID     string    `json:"review_id"`
	TenantID     string    `json:"tenant_id"`
	LocationID   string    `json:"location_id"`
	LocationName string    `json:"location_name"`
	Rating       int       `json:"rating"`
	Text         *string   `json:"text,omitempty"`
	AuthorName   *string   `json:"author_name,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
}

// ConsumerHandler stores imported reviews.
type ConsumerHandler struct {
	reviews   repository.ReviewRepository
	locations repository.LocationRepository
	cache     repository.StatsCache
	logger    *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler. cache may be nil.
func NewConsumerHandler(reviews repository.ReviewRepository, locations repository.LocationRepository, cache repository.StatsCache, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		reviews:   reviews,
		locations: locations,
		cache:     cache,
		logger:    logger,
	}
}

// Handle processes an incoming Kafka event based on its event type.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicReviewIngested:
		return h.handleReviewIngested(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (h *ConsumerHandler) handleReviewIngested(ctx context.Context, event *pkgkafka.Event) error {
	var data ReviewIngestedData
	if err := event.DecodeData(&data); err != nil {
		return fmt.Errorf("%w: decode review.ingested: %v", pkgkafka.ErrPermanent, err)
	}
	if data.TenantID == "" {
		data.TenantID = event.TenantID
	}
	if err := data.validate(); err != nil {
		return fmt.Errorf("%w: %v", pkgkafka.ErrPermanent, err)
	}

	if strings.TrimSpace(data.LocationName) != "" {
		loc := &domain.Location{ID: data.LocationID, TenantID: data.TenantID, Name: strings.TrimSpace(data.LocationName)}
		if err := h.locations.Upsert(ctx, loc); err != nil {
			return fmt.Errorf("store location: %w", err)
		}
	}

	owned, err := h.locations.FindByIDs(ctx, data.TenantID, []string{data.LocationID})
	if err != nil {
		return fmt.Errorf("check location: %w", err)
	}
	if len(owned) == 0 {
		return fmt.Errorf("%w: location %s does not belong to tenant %s", pkgkafka.ErrPermanent, data.LocationID, data.TenantID)
	}

	review := &domain.Review{
		ID:          data.ReviewID,
		TenantID:    data.TenantID,
		LocationID:  data.LocationID,
		Rating:      data.Rating,
		Text:        data.Text,
		AuthorName:  data.AuthorName,
		PublishedAt: data.PublishedAt.UTC(),
	}
	if err := h.reviews.Upsert(ctx, review); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return fmt.Errorf("%w: %v", pkgkafka.ErrPermanent, err)
		}
		return fmt.Errorf("store review: %w", err)
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, data.TenantID); err != nil {
			h.logger.WarnContext(ctx, "failed to invalidate stats cache",
				slog.String("tenant_id", data.TenantID),
				slog.String("error", err.Error()),
			)
		}
	}

	h.logger.InfoContext(ctx, "review ingested",
		slog.String("review_id", review.ID),
		slog.String("tenant_id", review.TenantID),
		slog.String("location_id", review.LocationID),
	)
	return nil
}

func (d ReviewIngestedData) validate() error {
	switch {
	case d.ReviewID == "":
		return errors.New("review_id is required")
	case d.TenantID == "":
		return errors.New("tenant_id is required")
	case d.LocationID == "":
		return errors.New("location_id is required")
	case !domain.ValidRating(d.Rating):
		return fmt.Errorf("rating %d out of range", d.Rating)
	case d.PublishedAt.IsZero():
		return errors.New("published_at is required")
	}
	return nil
}

// NewConsumer creates the Kafka consumer for imported reviews. When seen is
// set, redelivered events are skipped by event id. dlq and seen may be nil.
func NewConsumer(brokers []string, groupID string, maxAttempts int, handler *ConsumerHandler, seen pkgkafka.IdempotencyStore, dlq *pkgkafka.DeadLetterQueue, logger *slog.Logger) *pkgkafka.Consumer {
	if groupID == "" {
		groupID = ConsumerGroupID
	}
	cfg := pkgkafka.ConsumerConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       TopicReviewIngested,
		MaxAttempts: maxAttempts,
	}
	handle := pkgkafka.Handler(handler.Handle)
	if seen != nil {
		handle = pkgkafka.Idempotent(seen, handle, logger)
	}
	return pkgkafka.NewConsumer(cfg, handle, dlq, logger)
}
