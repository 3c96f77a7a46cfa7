package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TheHatt/revboard/internal/domain"
	pkgkafka "github.com/TheHatt/revboard/pkg/kafka"
)

// Kafka topics owned by the dashboard.
var (
	TopicReviewReplied  = pkgkafka.Topic(AggregateTypeReview, "replied")
	TopicReviewIngested = pkgkafka.Topic(AggregateTypeReview, "ingested")
)

// Aggregate type constant.
const AggregateTypeReview = "review"

// SourceRevboard identifies events originating from this service.
const SourceRevboard = "revboard"

// ReviewRepliedData is the payload for a review.replied event.
type ReviewRepliedData struct {
	ReviewID       string           `json:"review_id"`
	ReplyID        string           `json:"reply_id"`
	LocationID     string           `json:"location_id"`
	Rating         int              `json:"rating"`
	ReplyType      domain.ReplyType `json:"reply_type"`
	PostedByUserID *string          `json:"posted_by_user_id,omitempty"`
	AnsweredAt     time.Time        `json:"answered_at"`
	Edited         bool             `json:"edited"`
}

// publisher is the part of *pkgkafka.Producer the event producer needs.
type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes review domain events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishReplied publishes a review.replied event.
func (p *Producer) PublishReplied(ctx context.Context, review *domain.Review, reply *domain.Reply, edited bool) error {
	data := ReviewRepliedData{
		ReviewID:       review.ID,
		ReplyID:        reply.ID,
		LocationID:     review.LocationID,
		Rating:         review.Rating,
		ReplyType:      reply.Type,
		PostedByUserID: reply.PostedByUserID,
		AnsweredAt:     reply.PostedAt,
		Edited:         edited,
	}

	event, err := pkgkafka.NewEvent(ctx, TopicReviewReplied, review.ID, AggregateTypeReview, SourceRevboard, data)
	if err != nil {
		return fmt.Errorf("create review.replied event: %w", err)
	}
	event.TenantID = review.TenantID

	if err := p.kafka.Publish(ctx, TopicReviewReplied, event); err != nil {
		return fmt.Errorf("publish review.replied event: %w", err)
	}

	p.logger.DebugContext(ctx, "published review.replied event",
		slog.String("review_id", review.ID),
		slog.String("tenant_id", review.TenantID),
	)

	return nil
}
