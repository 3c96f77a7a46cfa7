package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/service"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
	"github.com/TheHatt/revboard/pkg/httputil"
	"github.com/TheHatt/revboard/pkg/validator"
)

// StatsComputer computes dashboard statistics.
type StatsComputer interface {
	ComputeStats(ctx context.Context, scope *domain.AccessScope, q service.StatsQuery) (*domain.Stats, error)
}

// ReviewLister lists reviews and the locations they can be filtered by.
type ReviewLister interface {
	List(ctx context.Context, scope *domain.AccessScope, p service.ListParams) (*service.ReviewPage, error)
	ListLocations(scope *domain.AccessScope) []domain.LocationOption
}

// Replier saves and suggests replies.
type Replier interface {
	SaveReply(ctx context.Context, input service.SaveReplyInput) (*domain.ReplyResult, error)
	SuggestReply(ctx context.Context, scope *domain.AccessScope, reviewID, tone string) (*service.Suggestion, error)
}

// SettingsManager reads and writes per-tenant dashboard settings.
type SettingsManager interface {
	Get(ctx context.Context, scope *domain.AccessScope) (*domain.Settings, error)
	Update(ctx context.Context, scope *domain.AccessScope, input service.UpdateSettingsInput) (*domain.Settings, error)
}

// DashboardHandler serves the review dashboard API.
type DashboardHandler struct {
	stats    StatsComputer
	reviews  ReviewLister
	replies  Replier
	settings SettingsManager
	logger   *slog.Logger
}

// NewDashboardHandler creates the dashboard HTTP handler.
func NewDashboardHandler(stats StatsComputer, reviews ReviewLister, replies Replier, settings SettingsManager, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		stats:    stats,
		reviews:  reviews,
		replies:  replies,
		settings: settings,
		logger:   logger,
	}
}

// --- Request DTOs ---

// ReplyRequest is the JSON body for posting or editing a reply.
type ReplyRequest struct {
	Text string `json:"text"`
	// Tone is set when the text started as a suggestion.
	Tone string `json:"tone"`
}

// SuggestionRequest is the JSON body for requesting a suggestion.
type SuggestionRequest struct {
	Tone string `json:"tone"`
}

// dateBounds are the explicit from/to query parameters of the read routes.
type dateBounds struct {
	From string `query:"from" validate:"omitempty,isodate"`
	To   string `query:"to" validate:"omitempty,isodate"`
}

// ReplyResponse wraps the stored reply.
type ReplyResponse struct {
	Reply *domain.ReplyResult `json:"reply"`
}

// --- Handlers ---

// GetStats handles GET /api/v1/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	bounds := dateBounds{From: q.Get("from"), To: q.Get("to")}
	if err := validator.Validate(bounds); err != nil {
		h.writeError(w, r, err)
		return
	}

	stats, err := h.stats.ComputeStats(r.Context(), scope, service.StatsQuery{
		Range:    q.Get("range"),
		From:     bounds.From,
		To:       bounds.To,
		Location: q.Get("location"),
		Weekday:  q.Get("weekday"),
		Query:    q.Get("q"),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, stats)
}

// ListReviews handles GET /api/v1/reviews
func (h *DashboardHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	bounds := dateBounds{From: q.Get("from"), To: q.Get("to")}
	if err := validator.Validate(bounds); err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.reviews.List(r.Context(), scope, service.ListParams{
		Range:    q.Get("range"),
		From:     bounds.From,
		To:       bounds.To,
		Rating:   q.Get("rating"),
		Status:   q.Get("status"),
		Location: q.Get("location"),
		Query:    q.Get("q"),
		Take:     q.Get("take"),
		Cursor:   q.Get("cursor"),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, page)
}

// ListLocations handles GET /api/v1/locations
func (h *DashboardHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, h.reviews.ListLocations(scope))
}

// CreateReply handles POST /api/v1/reviews/{id}/reply
func (h *DashboardHandler) CreateReply(w http.ResponseWriter, r *http.Request) {
	h.saveReply(w, r, false, http.StatusCreated)
}

// UpdateReply handles PUT /api/v1/reviews/{id}/reply
func (h *DashboardHandler) UpdateReply(w http.ResponseWriter, r *http.Request) {
	h.saveReply(w, r, true, http.StatusOK)
}

func (h *DashboardHandler) saveReply(w http.ResponseWriter, r *http.Request, allowEdit bool, status int) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req ReplyRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.replies.SaveReply(r.Context(), service.SaveReplyInput{
		ReviewID:     chi.URLParam(r, "id"),
		Scope:        scope,
		Text:         req.Text,
		AuthorUserID: scope.UserID,
		AllowEdit:    allowEdit,
		Tone:         req.Tone,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteData(w, status, ReplyResponse{Reply: result})
}

// SuggestReply handles POST /api/v1/reviews/{id}/reply/suggestion
func (h *DashboardHandler) SuggestReply(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req SuggestionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	suggestion, err := h.replies.SuggestReply(r.Context(), scope, chi.URLParam(r, "id"), req.Tone)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, suggestion)
}

// GetSettings handles GET /api/v1/settings
func (h *DashboardHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	settings, err := h.settings.Get(r.Context(), scope)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/v1/settings
func (h *DashboardHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req service.UpdateSettingsInput
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	settings, err := h.settings.Update(r.Context(), scope, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, settings)
}

// writeError renders validation failures with their field messages and
// everything else through the error envelope.
func (h *DashboardHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteValidationError(w, err)
		return
	}
	httputil.WriteError(w, r, err, h.logger)
}

func (h *DashboardHandler) scope(w http.ResponseWriter, r *http.Request) (*domain.AccessScope, bool) {
	scope, ok := scopeFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return nil, false
	}
	return scope, true
}
