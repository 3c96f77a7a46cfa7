package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
	"github.com/TheHatt/revboard/pkg/validator"
)

// ReplyPublisher announces saved replies to other systems.
type ReplyPublisher interface {
	PublishReplied(ctx context.Context, review *domain.Review, reply *domain.Reply, edited bool) error
}

// Suggester drafts a reply text for a review.
type Suggester interface {
	Suggest(ctx context.Context, review *domain.Review, tone domain.Tone) (string, error)
}

// SaveReplyInput holds the parameters for posting or editing a reply.
type SaveReplyInput struct {
	ReviewID     string
	Scope        *domain.AccessScope
	Text         string
	AuthorUserID string
	AllowEdit    bool
	// Tone is set when the text was taken from a suggestion.
	Tone string
}

// replyText carries the length rule for stored replies; max must equal
// domain.MaxReplyLength.
type replyText struct {
	Text string `json:"text" validate:"notblank,max=5000"`
}

// Suggestion is a drafted reply text.
type Suggestion struct {
	Text string      `json:"text"`
	Tone domain.Tone `json:"tone"`
}

// ReplyService implements business logic for replying to reviews.
type ReplyService struct {
	reviews   repository.ReviewRepository
	replies   repository.ReplyRepository
	cache     repository.StatsCache
	publisher ReplyPublisher
	suggester Suggester
	now       func() time.Time
	logger    *slog.Logger
}

// NewReplyService creates a new reply service. publisher and suggester may
// be nil; a nil suggester disables suggestions.
func NewReplyService(
	reviews repository.ReviewRepository,
	replies repository.ReplyRepository,
	cache repository.StatsCache,
	publisher ReplyPublisher,
	suggester Suggester,
	logger *slog.Logger,
) *ReplyService {
	return &ReplyService{
		reviews:   reviews,
		replies:   replies,
		cache:     cache,
		publisher: publisher,
		suggester: suggester,
		now:       time.Now,
		logger:    logger,
	}
}

// SaveReply posts the reply of a review, or replaces it when AllowEdit is set.
func (s *ReplyService) SaveReply(ctx context.Context, input SaveReplyInput) (*domain.ReplyResult, error) {
	review, err := s.authorize(ctx, input.Scope, input.ReviewID)
	if err != nil {
		replyOutcomes.WithLabelValues(outcomeRejected).Inc()
		return nil, err
	}

	text := strings.TrimSpace(input.Text)
	if err := validator.Validate(replyText{Text: text}); err != nil {
		replyOutcomes.WithLabelValues(outcomeRejected).Inc()
		return nil, err
	}

	replyType := domain.ReplyTypeManual
	if strings.TrimSpace(input.Tone) != "" {
		replyType = domain.ReplyTypeAutomatedSuggestion
	}

	reply := &domain.Reply{
		ID:       uuid.New().String(),
		ReviewID: review.ID,
		Text:     text,
		PostedAt: s.now().UTC().Truncate(time.Microsecond),
		Type:     replyType,
	}
	if input.AuthorUserID != "" {
		author := input.AuthorUserID
		reply.PostedByUserID = &author
	}

	if err := s.replies.Save(ctx, review.TenantID, reply, input.AllowEdit); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			replyOutcomes.WithLabelValues(outcomeConflict).Inc()
		} else {
			replyOutcomes.WithLabelValues(outcomeFailed).Inc()
		}
		return nil, err
	}

	outcome := outcomeCreated
	if input.AllowEdit {
		outcome = outcomeUpdated
	}
	replyOutcomes.WithLabelValues(outcome).Inc()

	s.logger.InfoContext(ctx, "reply saved",
		slog.String("review_id", review.ID),
		slog.String("tenant_id", review.TenantID),
		slog.String("reply_type", string(reply.Type)),
		slog.Bool("edit", input.AllowEdit),
	)

	s.afterSave(ctx, review, reply, input.AllowEdit)

	return &domain.ReplyResult{Text: reply.Text, AnsweredAt: reply.PostedAt}, nil
}

// afterSave runs the side effects of a committed reply. Their failures are
// logged and never surface to the caller.
func (s *ReplyService) afterSave(ctx context.Context, review *domain.Review, reply *domain.Reply, edited bool) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, review.TenantID); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate stats cache",
				slog.String("tenant_id", review.TenantID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishReplied(ctx, review, reply, edited); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish review replied event",
				slog.String("review_id", review.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// SuggestReply drafts a reply for a review the scope may answer.
func (s *ReplyService) SuggestReply(ctx context.Context, scope *domain.AccessScope, reviewID, tone string) (*Suggestion, error) {
	if s.suggester == nil {
		return nil, &apperrors.AppError{
			Code:    "SUGGESTIONS_DISABLED",
			Message: "reply suggestions are not enabled",
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrInternal,
		}
	}

	review, err := s.authorize(ctx, scope, reviewID)
	if err != nil {
		return nil, err
	}

	t := domain.ParseTone(tone)
	text, err := s.suggester.Suggest(ctx, review, t)
	if err != nil {
		return nil, fmt.Errorf("suggest reply: %w", err)
	}

	return &Suggestion{Text: text, Tone: t}, nil
}

// authorize loads the review and applies the write checks in order: role,
// existence, tenant, location.
func (s *ReplyService) authorize(ctx context.Context, scope *domain.AccessScope, reviewID string) (*domain.Review, error) {
	if err := RequireWriteRole(scope.Role); err != nil {
		return nil, err
	}

	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	if review.TenantID != scope.TenantID {
		return nil, apperrors.Forbidden("review belongs to another tenant")
	}
	if err := CheckLocationScope(scope, review.LocationID); err != nil {
		return nil, err
	}

	return review, nil
}
