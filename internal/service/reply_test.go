package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository/postgres"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
	"github.com/TheHatt/revboard/pkg/validator"
)

// --- Mock Publisher and Suggester ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishReplied(ctx context.Context, review *domain.Review, reply *domain.Reply, edited bool) error {
	args := m.Called(ctx, review, reply, edited)
	return args.Error(0)
}

type mockSuggester struct {
	mock.Mock
}

func (m *mockSuggester) Suggest(ctx context.Context, review *domain.Review, tone domain.Tone) (string, error) {
	args := m.Called(ctx, review, tone)
	return args.String(0), args.Error(1)
}

// --- Test Helpers ---

func replyFixture() (*memReviews, *mockReplyRepository) {
	reviews := newMemReviews(testLocations,
		domain.Review{ID: "r-a", TenantID: "t-1", LocationID: "loc-a", Rating: 4, PublishedAt: testNow.Add(-time.Hour)},
		domain.Review{ID: "r-b", TenantID: "t-1", LocationID: "loc-b", Rating: 2, PublishedAt: testNow.Add(-2 * time.Hour)},
		domain.Review{ID: "r-other", TenantID: "t-2", LocationID: "loc-x", Rating: 1, PublishedAt: testNow.Add(-3 * time.Hour)},
	)
	return reviews, new(mockReplyRepository)
}

func newTestReplyService(reviews *memReviews, replies *mockReplyRepository, cache *memCache, pub ReplyPublisher, sug Suggester) *ReplyService {
	svc := NewReplyService(reviews, replies, cache, pub, sug, newTestLogger())
	svc.now = fixedNow
	return svc
}

// --- Tests ---

func TestSaveReply_Success(t *testing.T) {
	reviews, replies := replyFixture()
	cache := newMemCache()
	pub := new(mockPublisher)
	svc := newTestReplyService(reviews, replies, cache, pub, nil)
	ctx := context.Background()

	replies.On("Save", ctx, "t-1", mock.AnythingOfType("*domain.Reply"), false).Return(nil)
	pub.On("PublishReplied", ctx, mock.AnythingOfType("*domain.Review"), mock.AnythingOfType("*domain.Reply"), false).Return(nil)

	result, err := svc.SaveReply(ctx, SaveReplyInput{
		ReviewID:     "r-a",
		Scope:        adminScope(),
		Text:         "  Vielen Dank für Ihren Besuch!  ",
		AuthorUserID: "u-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "Vielen Dank für Ihren Besuch!", result.Text)
	assert.Equal(t, testNow, result.AnsweredAt)

	saved := replies.Calls[0].Arguments.Get(2).(*domain.Reply)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "r-a", saved.ReviewID)
	assert.Equal(t, domain.ReplyTypeManual, saved.Type)
	require.NotNil(t, saved.PostedByUserID)
	assert.Equal(t, "u-1", *saved.PostedByUserID)

	assert.Equal(t, []string{"t-1"}, cache.invalidated)
	replies.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestSaveReply_ToneMarksSuggestion(t *testing.T) {
	reviews, replies := replyFixture()
	svc := newTestReplyService(reviews, replies, newMemCache(), nil, nil)
	ctx := context.Background()

	replies.On("Save", ctx, "t-1", mock.MatchedBy(func(r *domain.Reply) bool {
		return r.Type == domain.ReplyTypeAutomatedSuggestion
	}), true).Return(nil)

	_, err := svc.SaveReply(ctx, SaveReplyInput{
		ReviewID:  "r-a",
		Scope:     adminScope(),
		Text:      "Danke!",
		Tone:      "friendly",
		AllowEdit: true,
	})

	require.NoError(t, err)
	replies.AssertExpectations(t)
}

func TestSaveReply_SecondReplyConflicts(t *testing.T) {
	reviews, replies := replyFixture()
	svc := newTestReplyService(reviews, replies, newMemCache(), nil, nil)
	ctx := context.Background()

	replies.On("Save", ctx, "t-1", mock.AnythingOfType("*domain.Reply"), false).Return(nil).Once()
	replies.On("Save", ctx, "t-1", mock.AnythingOfType("*domain.Reply"), false).Return(postgres.ErrAlreadyAnswered).Once()

	input := SaveReplyInput{ReviewID: "r-a", Scope: adminScope(), Text: "first"}
	_, err := svc.SaveReply(ctx, input)
	require.NoError(t, err)

	input.Text = "second"
	result, err := svc.SaveReply(ctx, input)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "ALREADY_ANSWERED", appErr.Code)
	replies.AssertExpectations(t)
}

func TestSaveReply_CheckOrder(t *testing.T) {
	viewer := adminScope()
	viewer.Role = domain.RoleViewer

	tests := []struct {
		name   string
		input  SaveReplyInput
		target error
	}{
		{"viewer", SaveReplyInput{ReviewID: "missing", Scope: viewer, Text: ""}, apperrors.ErrForbidden},
		{"missing review", SaveReplyInput{ReviewID: "missing", Scope: adminScope(), Text: ""}, apperrors.ErrNotFound},
		{"other tenant", SaveReplyInput{ReviewID: "r-other", Scope: adminScope(), Text: ""}, apperrors.ErrForbidden},
		{"location out of scope", SaveReplyInput{ReviewID: "r-b", Scope: restrictedScope(), Text: ""}, apperrors.ErrForbidden},
		{"blank text", SaveReplyInput{ReviewID: "r-a", Scope: restrictedScope(), Text: "   "}, apperrors.ErrInvalidInput},
		{"text too long", SaveReplyInput{ReviewID: "r-a", Scope: restrictedScope(), Text: strings.Repeat("a", domain.MaxReplyLength+1)}, apperrors.ErrInvalidInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reviews, replies := replyFixture()
			svc := newTestReplyService(reviews, replies, newMemCache(), nil, nil)

			result, err := svc.SaveReply(context.Background(), tc.input)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tc.target)
			replies.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSaveReply_TextErrorsNameTheField(t *testing.T) {
	reviews, replies := replyFixture()
	svc := newTestReplyService(reviews, replies, newMemCache(), nil, nil)

	_, err := svc.SaveReply(context.Background(), SaveReplyInput{
		ReviewID: "r-a",
		Scope:    adminScope(),
		Text:     strings.Repeat("a", domain.MaxReplyLength+1),
	})

	var valErr *validator.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be at most 5000 characters", valErr.Fields()["text"])
}

func TestSaveReply_AnsweredAtHasStoragePrecision(t *testing.T) {
	reviews, replies := replyFixture()
	svc := newTestReplyService(reviews, replies, newMemCache(), nil, nil)
	svc.now = func() time.Time { return testNow.Add(123456789 * time.Nanosecond) }
	ctx := context.Background()

	replies.On("Save", ctx, "t-1", mock.AnythingOfType("*domain.Reply"), false).Return(nil)

	result, err := svc.SaveReply(ctx, SaveReplyInput{ReviewID: "r-a", Scope: adminScope(), Text: "Danke"})
	require.NoError(t, err)

	want := testNow.Add(123456 * time.Microsecond)
	assert.Equal(t, want, result.AnsweredAt)
	saved := replies.Calls[0].Arguments.Get(2).(*domain.Reply)
	assert.Equal(t, want, saved.PostedAt)
}

func TestSaveReply_EmptyScopeIsForbidden(t *testing.T) {
	reviews, replies := replyFixture()
	svc := newTestReplyService(reviews, replies, newMemCache(), nil, nil)

	_, err := svc.SaveReply(context.Background(), SaveReplyInput{ReviewID: "r-a", Scope: emptyScope(), Text: "Danke"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	replies.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveReply_MaxLengthAccepted(t *testing.T) {
	reviews, replies := replyFixture()
	svc := newTestReplyService(reviews, replies, newMemCache(), nil, nil)
	ctx := context.Background()

	replies.On("Save", ctx, "t-1", mock.AnythingOfType("*domain.Reply"), false).Return(nil)

	text := strings.Repeat("ü", domain.MaxReplyLength)
	result, err := svc.SaveReply(ctx, SaveReplyInput{ReviewID: "r-a", Scope: adminScope(), Text: text})
	require.NoError(t, err)
	assert.Equal(t, text, result.Text)
}

func TestSaveReply_SideEffectFailuresAreIgnored(t *testing.T) {
	reviews, replies := replyFixture()
	cache := newMemCache()
	cache.err = errors.New("redis down")
	pub := new(mockPublisher)
	svc := newTestReplyService(reviews, replies, cache, pub, nil)
	ctx := context.Background()

	replies.On("Save", ctx, "t-1", mock.AnythingOfType("*domain.Reply"), false).Return(nil)
	pub.On("PublishReplied", ctx, mock.Anything, mock.Anything, false).Return(errors.New("broker unavailable"))

	result, err := svc.SaveReply(ctx, SaveReplyInput{ReviewID: "r-a", Scope: adminScope(), Text: "Danke"})
	require.NoError(t, err)
	assert.Equal(t, "Danke", result.Text)
	pub.AssertExpectations(t)
}

func TestSaveReply_RepositoryError(t *testing.T) {
	reviews, replies := replyFixture()
	cache := newMemCache()
	svc := newTestReplyService(reviews, replies, cache, nil, nil)
	ctx := context.Background()

	replies.On("Save", ctx, "t-1", mock.Anything, false).Return(errors.New("commit transaction: conn closed"))

	_, err := svc.SaveReply(ctx, SaveReplyInput{ReviewID: "r-a", Scope: adminScope(), Text: "Danke"})
	assert.Error(t, err)
	assert.Empty(t, cache.invalidated)
}

func TestSuggestReply(t *testing.T) {
	reviews, replies := replyFixture()
	sug := new(mockSuggester)
	svc := newTestReplyService(reviews, replies, newMemCache(), nil, sug)
	ctx := context.Background()

	sug.On("Suggest", ctx, mock.MatchedBy(func(r *domain.Review) bool { return r.ID == "r-a" }), domain.ToneFormal).
		Return("Sehr geehrte Damen und Herren, vielen Dank.", nil)

	s, err := svc.SuggestReply(ctx, adminScope(), "r-a", "formal")
	require.NoError(t, err)
	assert.Equal(t, domain.ToneFormal, s.Tone)
	assert.Equal(t, "Sehr geehrte Damen und Herren, vielen Dank.", s.Text)
	sug.AssertExpectations(t)
}

func TestSuggestReply_RespectsScope(t *testing.T) {
	reviews, replies := replyFixture()
	sug := new(mockSuggester)
	svc := newTestReplyService(reviews, replies, newMemCache(), nil, sug)

	_, err := svc.SuggestReply(context.Background(), restrictedScope(), "r-b", "")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	sug.AssertNotCalled(t, "Suggest", mock.Anything, mock.Anything, mock.Anything)
}

func TestSuggestReply_Disabled(t *testing.T) {
	reviews, replies := replyFixture()
	svc := newTestReplyService(reviews, replies, newMemCache(), nil, nil)

	_, err := svc.SuggestReply(context.Background(), adminScope(), "r-a", "")
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SUGGESTIONS_DISABLED", appErr.Code)
}
