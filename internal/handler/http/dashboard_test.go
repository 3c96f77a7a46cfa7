package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/service"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
	"github.com/TheHatt/revboard/pkg/health"
	"github.com/TheHatt/revboard/pkg/httputil"
	"github.com/TheHatt/revboard/pkg/middleware"
	"github.com/TheHatt/revboard/pkg/validator"
)

const testSecret = "test-secret-0123456789"

// --- Mocks ---

type mockStats struct{ mock.Mock }

func (m *mockStats) ComputeStats(ctx context.Context, scope *domain.AccessScope, q service.StatsQuery) (*domain.Stats, error) {
	args := m.Called(ctx, scope, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Stats), args.Error(1)
}

type mockReviews struct{ mock.Mock }

func (m *mockReviews) List(ctx context.Context, scope *domain.AccessScope, p service.ListParams) (*service.ReviewPage, error) {
	args := m.Called(ctx, scope, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReviewPage), args.Error(1)
}

func (m *mockReviews) ListLocations(scope *domain.AccessScope) []domain.LocationOption {
	args := m.Called(scope)
	return args.Get(0).([]domain.LocationOption)
}

type mockReplier struct{ mock.Mock }

func (m *mockReplier) SaveReply(ctx context.Context, input service.SaveReplyInput) (*domain.ReplyResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReplyResult), args.Error(1)
}

func (m *mockReplier) SuggestReply(ctx context.Context, scope *domain.AccessScope, reviewID, tone string) (*service.Suggestion, error) {
	args := m.Called(ctx, scope, reviewID, tone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Suggestion), args.Error(1)
}

type mockSettings struct{ mock.Mock }

func (m *mockSettings) Get(ctx context.Context, scope *domain.AccessScope) (*domain.Settings, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Settings), args.Error(1)
}

func (m *mockSettings) Update(ctx context.Context, scope *domain.AccessScope, input service.UpdateSettingsInput) (*domain.Settings, error) {
	args := m.Called(ctx, scope, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Settings), args.Error(1)
}

type mockScopes struct{ mock.Mock }

func (m *mockScopes) ResolveScope(ctx context.Context, userID, activeTenantID string, claimed []string) (*domain.AccessScope, error) {
	args := m.Called(ctx, userID, activeTenantID, claimed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccessScope), args.Error(1)
}

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withScope(ctx context.Context, scope *domain.AccessScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

type fixture struct {
	stats    *mockStats
	reviews  *mockReviews
	replies  *mockReplier
	settings *mockSettings
	scopes   *mockScopes
	router   http.Handler
}

func newFixture(t *testing.T, burst int) *fixture {
	t.Helper()
	f := &fixture{
		stats:    new(mockStats),
		reviews:  new(mockReviews),
		replies:  new(mockReplier),
		settings: new(mockSettings),
		scopes:   new(mockScopes),
	}
	h := NewDashboardHandler(f.stats, f.reviews, f.replies, f.settings, testLogger())
	f.router = NewRouter(
		RouterConfig{JWTSecret: testSecret, CORSAllowedOrigins: []string{"http://localhost:3000"}},
		h,
		f.scopes,
		middleware.NewRateLimiter(0.001, burst, testLogger()),
		health.NewHandler(),
		testLogger(),
	)
	return f
}

func testScope() *domain.AccessScope {
	return &domain.AccessScope{
		UserID:             "u-1",
		TenantID:           "t-1",
		Role:               domain.RoleEditor,
		AllowedLocationIDs: []string{"loc-a"},
		LocationOptions:    []domain.LocationOption{{ID: "loc-a", Label: "Berlin Mitte"}},
	}
}

func (f *fixture) expectScope() {
	f.scopes.On("ResolveScope", mock.Anything, "u-1", "t-1", []string(nil)).Return(testScope(), nil)
}

func signToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       "u-1",
		"tenant_id": "t-1",
		"role":      "editor",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+signToken(t))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

// --- Tests ---

func TestRouter_RequiresBearerToken(t *testing.T) {
	f := newFixture(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", http.NoBody)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, rec).Error.Code)
	f.scopes.AssertNotCalled(t, "ResolveScope", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_ScopeResolutionFailure(t *testing.T) {
	f := newFixture(t, 5)
	f.scopes.On("ResolveScope", mock.Anything, "u-1", "t-1", []string(nil)).
		Return(nil, apperrors.Forbidden("user has no tenant membership"))

	rec := f.do(t, http.MethodGet, "/api/v1/stats", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, rec).Error.Code)
	f.stats.AssertNotCalled(t, "ComputeStats", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_HealthIsPublic(t *testing.T) {
	f := newFixture(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/health/live", http.NoBody)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetStats(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()

	stats := domain.EmptyStats()
	stats.TotalReviews = 15
	f.stats.On("ComputeStats", mock.Anything, testScope(), service.StatsQuery{
		Range:    "7d",
		Location: "loc-a",
		Weekday:  "1",
		Query:    "essen",
	}).Return(stats, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/stats?range=7d&location=loc-a&weekday=1&q=essen", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Stats
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	assert.Equal(t, 15, got.TotalReviews)
	assert.Len(t, got.ByHour, 24)
	f.stats.AssertExpectations(t)
}

func TestGetStats_InvalidInput(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	f.stats.On("ComputeStats", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.InvalidInput("unknown range preset \"90d\""))

	rec := f.do(t, http.MethodGet, "/api/v1/stats?range=90d", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, rec).Error.Code)
}

func TestGetStats_MalformedDateBounds(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()

	rec := f.do(t, http.MethodGet, "/api/v1/stats?from=15.03.2025&to=2025-03-31", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "must be a date in YYYY-MM-DD format", env.Error.Fields["from"])
	assert.NotContains(t, env.Error.Fields, "to")
	f.stats.AssertNotCalled(t, "ComputeStats", mock.Anything, mock.Anything, mock.Anything)
}

func TestListReviews_DateBounds(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	f.reviews.On("List", mock.Anything, testScope(), service.ListParams{From: "2025-03-01", To: "2025-03-15"}).
		Return(&service.ReviewPage{Items: []domain.ReviewItem{}}, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/reviews?from=2025-03-01&to=2025-03-15", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/reviews?to=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Error.Fields, "to")
	f.reviews.AssertNumberOfCalls(t, "List", 1)
}

func TestGetStats_InternalErrorHidesCause(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	f.stats.On("ComputeStats", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("count reviews: pq: relation does not exist"))

	rec := f.do(t, http.MethodGet, "/api/v1/stats", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.NotContains(t, env.Error.Message, "relation")
}

func TestListReviews(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()

	next := "opaque-cursor"
	page := &service.ReviewPage{
		Items:      []domain.ReviewItem{{ID: "r-1", Author: "Erika", Initials: "ER", Stars: 5, Location: "Berlin Mitte"}},
		NextCursor: &next,
	}
	f.reviews.On("List", mock.Anything, testScope(), service.ListParams{
		Rating: "5",
		Status: "open",
		Take:   "12",
		Cursor: "abc",
	}).Return(page, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/reviews?rating=5&status=open&take=12&cursor=abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Items      []domain.ReviewItem `json:"items"`
		NextCursor *string             `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "r-1", got.Items[0].ID)
	require.NotNil(t, got.NextCursor)
	assert.Equal(t, next, *got.NextCursor)
}

func TestListLocations(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	f.reviews.On("ListLocations", testScope()).Return(testScope().LocationOptions)

	rec := f.do(t, http.MethodGet, "/api/v1/locations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []domain.LocationOption
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	assert.Equal(t, testScope().LocationOptions, got)
}

func TestCreateReply(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()

	answeredAt := time.Date(2025, 3, 15, 13, 30, 0, 0, time.UTC)
	f.replies.On("SaveReply", mock.Anything, service.SaveReplyInput{
		ReviewID:     "r-1",
		Scope:        testScope(),
		Text:         "Vielen Dank!",
		AuthorUserID: "u-1",
		AllowEdit:    false,
		Tone:         "friendly",
	}).Return(&domain.ReplyResult{Text: "Vielen Dank!", AnsweredAt: answeredAt}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/reviews/r-1/reply", ReplyRequest{Text: "Vielen Dank!", Tone: "friendly"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var got ReplyResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	require.NotNil(t, got.Reply)
	assert.Equal(t, "Vielen Dank!", got.Reply.Text)
	assert.True(t, answeredAt.Equal(got.Reply.AnsweredAt))
	f.replies.AssertExpectations(t)
}

func TestUpdateReply_AllowsEdit(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	f.replies.On("SaveReply", mock.Anything, mock.MatchedBy(func(in service.SaveReplyInput) bool {
		return in.AllowEdit && in.ReviewID == "r-1"
	})).Return(&domain.ReplyResult{Text: "Edited"}, nil)

	rec := f.do(t, http.MethodPut, "/api/v1/reviews/r-1/reply", ReplyRequest{Text: "Edited"})

	assert.Equal(t, http.StatusOK, rec.Code)
	f.replies.AssertExpectations(t)
}

func TestCreateReply_AlreadyAnswered(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	f.replies.On("SaveReply", mock.Anything, mock.Anything).
		Return(nil, apperrors.Conflict("ALREADY_ANSWERED", "review already has a reply"))

	rec := f.do(t, http.MethodPost, "/api/v1/reviews/r-1/reply", ReplyRequest{Text: "again"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_ANSWERED", decode(t, rec).Error.Code)
}

func TestCreateReply_InvalidBody(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews/r-1/reply", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+signToken(t))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, rec).Error.Code)
	f.replies.AssertNotCalled(t, "SaveReply", mock.Anything, mock.Anything)
}

func TestCreateReply_BlankTextFieldError(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	err := validator.Validate(struct {
		Text string `json:"text" validate:"notblank"`
	}{Text: " "})
	f.replies.On("SaveReply", mock.Anything, mock.Anything).Return(nil, err)

	rec := f.do(t, http.MethodPost, "/api/v1/reviews/r-1/reply", ReplyRequest{Text: " "})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "is required", env.Error.Fields["text"])
}

func TestCreateReply_WrongContentType(t *testing.T) {
	f := newFixture(t, 5)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews/r-1/reply", bytes.NewBufferString("text=hi"))
	req.Header.Set("Authorization", "Bearer "+signToken(t))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCreateReply_RateLimited(t *testing.T) {
	f := newFixture(t, 1)
	f.expectScope()
	f.replies.On("SaveReply", mock.Anything, mock.Anything).Return(&domain.ReplyResult{Text: "ok"}, nil).Once()

	first := f.do(t, http.MethodPost, "/api/v1/reviews/r-1/reply", ReplyRequest{Text: "ok"})
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(t, http.MethodPost, "/api/v1/reviews/r-2/reply", ReplyRequest{Text: "ok"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "RATE_LIMITED", decode(t, second).Error.Code)

	// Reads are not limited.
	f.stats.On("ComputeStats", mock.Anything, mock.Anything, mock.Anything).Return(domain.EmptyStats(), nil)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/stats", nil).Code)
	f.replies.AssertExpectations(t)
}

func TestSuggestReply(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	f.replies.On("SuggestReply", mock.Anything, testScope(), "r-1", "formal").
		Return(&service.Suggestion{Text: "Sehr geehrte Frau Mustermann", Tone: domain.ToneFormal}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/reviews/r-1/reply/suggestion", SuggestionRequest{Tone: "formal"})
	require.Equal(t, http.StatusOK, rec.Code)

	var got service.Suggestion
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	assert.Equal(t, domain.ToneFormal, got.Tone)
	assert.Equal(t, "Sehr geehrte Frau Mustermann", got.Text)
}

func TestSuggestReply_EmptyBody(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	f.replies.On("SuggestReply", mock.Anything, testScope(), "r-1", "").
		Return(&service.Suggestion{Text: "Hallo", Tone: domain.ToneNeutral}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/reviews/r-1/reply/suggestion", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.replies.AssertExpectations(t)
}

func TestGetSettings_Forbidden(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()
	f.settings.On("Get", mock.Anything, testScope()).Return(nil, apperrors.Forbidden("settings require the admin role"))

	rec := f.do(t, http.MethodGet, "/api/v1/settings", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()

	enabled := false
	input := service.UpdateSettingsInput{Timezone: "Europe/Vienna", KeywordsEnabled: &enabled, TopKeywords: 10}
	f.settings.On("Update", mock.Anything, testScope(), input).
		Return(&domain.Settings{TenantID: "t-1", Timezone: "Europe/Vienna", TopKeywords: 10}, nil)

	rec := f.do(t, http.MethodPut, "/api/v1/settings", input)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Settings
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	assert.Equal(t, "Europe/Vienna", got.Timezone)
	assert.False(t, got.KeywordsEnabled)
}

func TestUpdateSettings_ValidationError(t *testing.T) {
	f := newFixture(t, 5)
	f.expectScope()

	valErr := validator.Validate(service.UpdateSettingsInput{Timezone: "Mars/Olympus", TopKeywords: 500})
	require.Error(t, valErr)
	f.settings.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil, valErr)

	rec := f.do(t, http.MethodPut, "/api/v1/settings", map[string]any{"timezone": "Mars/Olympus", "top_keywords": 500})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "timezone")
	assert.Contains(t, env.Error.Fields, "top_keywords")
}

func TestHandler_MissingScope(t *testing.T) {
	h := NewDashboardHandler(new(mockStats), new(mockReviews), new(mockReplier), new(mockSettings), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/locations", http.NoBody)
	rec := httptest.NewRecorder()
	h.ListLocations(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_WithScope(t *testing.T) {
	reviews := new(mockReviews)
	reviews.On("ListLocations", testScope()).Return([]domain.LocationOption{})
	h := NewDashboardHandler(new(mockStats), reviews, new(mockReplier), new(mockSettings), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/locations", http.NoBody)
	req = req.WithContext(withScope(req.Context(), testScope()))
	rec := httptest.NewRecorder()
	h.ListLocations(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}
