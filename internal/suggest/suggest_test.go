package suggest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/TheHatt/revboard/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func testReview() *domain.Review {
	return &domain.Review{
		ID:         "r-1",
		TenantID:   "t-1",
		LocationID: "loc-a",
		Rating:     5,
		AuthorName: strPtr("Erika Mustermann"),
		Text:       strPtr("Tolles Essen, super Service!"),
	}
}

// fakeGenerator records the prompt and returns a canned response.
type fakeGenerator struct {
	resp     *llms.ContentResponse
	err      error
	calls    int
	messages []llms.MessageContent
	deadline bool
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func textResponse(s string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s}}}
}

func promptText(t *testing.T, msgs []llms.MessageContent) string {
	t.Helper()
	var b strings.Builder
	for _, m := range msgs {
		for _, p := range m.Parts {
			tp, ok := p.(llms.TextContent)
			require.True(t, ok)
			b.WriteString(tp.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// stubSuggester counts calls and fails with err when set.
type stubSuggester struct {
	text  string
	err   error
	calls int
}

func (s *stubSuggester) Suggest(context.Context, *domain.Review, domain.Tone) (string, error) {
	s.calls++
	return s.text, s.err
}

// --- Templates ---

func TestTemplates_GreetsByFirstName(t *testing.T) {
	text, err := Templates{}.Suggest(context.Background(), testReview(), domain.ToneNeutral)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Hallo Erika,\n\n"))
	assert.Contains(t, text, "5-Sterne-Bewertung")
	assert.True(t, strings.HasSuffix(text, "Ihr Team"))
}

func TestTemplates_AnonymousAuthor(t *testing.T) {
	review := testReview()
	review.AuthorName = strPtr("   ")

	text, err := Templates{}.Suggest(context.Background(), review, domain.ToneShort)
	require.NoError(t, err)
	assert.Equal(t, "Hallo,\n\ndanke für Ihre Bewertung! Viele Grüße\nIhr Team", text)
}

func TestTemplates_EveryToneProducesText(t *testing.T) {
	for _, tone := range domain.Tones {
		for rating := 1; rating <= 5; rating++ {
			review := testReview()
			review.Rating = rating
			text, err := Templates{}.Suggest(context.Background(), review, tone)
			require.NoError(t, err)
			assert.NotEmpty(t, text)
			assert.LessOrEqual(t, len([]rune(text)), domain.MaxReplyLength)
		}
	}
}

func TestTemplates_LowRatingApologises(t *testing.T) {
	review := testReview()
	review.Rating = 1

	text, err := Templates{}.Suggest(context.Background(), review, domain.ToneFormal)
	require.NoError(t, err)
	assert.Contains(t, text, "Es tut uns leid")
}

// --- LLM ---

func TestLLM_Suggest(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("  Liebe Erika, vielen Dank!  \n")}
	l := &LLM{model: gen, timeout: time.Second}

	text, err := l.Suggest(context.Background(), testReview(), domain.ToneFriendly)
	require.NoError(t, err)
	assert.Equal(t, "Liebe Erika, vielen Dank!", text)
	assert.True(t, gen.deadline)

	require.Len(t, gen.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, gen.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, gen.messages[1].Role)

	p := promptText(t, gen.messages)
	assert.Contains(t, p, "warm and friendly")
	assert.Contains(t, p, "Rating: 5 of 5 stars")
	assert.Contains(t, p, "Erika Mustermann")
	assert.Contains(t, p, "Tolles Essen")
}

func TestLLM_PromptWithoutTextOrAuthor(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("Danke!")}
	l := &LLM{model: gen}
	review := testReview()
	review.AuthorName = nil
	review.Text = nil

	_, err := l.Suggest(context.Background(), review, domain.ToneNeutral)
	require.NoError(t, err)
	assert.False(t, gen.deadline)

	p := promptText(t, gen.messages)
	assert.Contains(t, p, "Reviewer: "+domain.AnonymousAuthor)
	assert.Contains(t, p, "Review: (no text)")
}

func TestLLM_Errors(t *testing.T) {
	tests := []struct {
		name   string
		gen    *fakeGenerator
		target error
	}{
		{"no choices", &fakeGenerator{resp: &llms.ContentResponse{}}, ErrEmptySuggestion},
		{"blank content", &fakeGenerator{resp: textResponse("   ")}, ErrEmptySuggestion},
		{"model error", &fakeGenerator{err: errors.New("429 too many requests")}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := &LLM{model: tc.gen}
			text, err := l.Suggest(context.Background(), testReview(), domain.ToneNeutral)
			require.Error(t, err)
			assert.Empty(t, text)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
		})
	}
}

func TestLLM_TruncatesLongOutput(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(strings.Repeat("ä", domain.MaxReplyLength+10))}
	l := &LLM{model: gen}

	text, err := l.Suggest(context.Background(), testReview(), domain.ToneDetailed)
	require.NoError(t, err)
	assert.Len(t, []rune(text), domain.MaxReplyLength)
}

// --- Breaker ---

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "suggest_test",
		MaxRequests:  1,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
}

func TestBreaker_PassesThroughOnSuccess(t *testing.T) {
	primary := &stubSuggester{text: "from model"}
	fallback := &stubSuggester{text: "from template"}
	b := NewBreaker(primary, fallback, testBreakerConfig(), newTestLogger())

	text, err := b.Suggest(context.Background(), testReview(), domain.ToneNeutral)
	require.NoError(t, err)
	assert.Equal(t, "from model", text)
	assert.Zero(t, fallback.calls)
}

func TestBreaker_FallsBackAndOpens(t *testing.T) {
	primary := &stubSuggester{err: errors.New("upstream 503")}
	fallback := &stubSuggester{text: "from template"}
	b := NewBreaker(primary, fallback, testBreakerConfig(), newTestLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		text, err := b.Suggest(ctx, testReview(), domain.ToneNeutral)
		require.NoError(t, err)
		assert.Equal(t, "from template", text)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	// While open the model is not called at all.
	text, err := b.Suggest(ctx, testReview(), domain.ToneNeutral)
	require.NoError(t, err)
	assert.Equal(t, "from template", text)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 3, fallback.calls)
}

func TestBreaker_CanceledContext(t *testing.T) {
	primary := &stubSuggester{err: context.Canceled}
	fallback := &stubSuggester{text: "from template"}
	b := NewBreaker(primary, fallback, testBreakerConfig(), newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Suggest(ctx, testReview(), domain.ToneNeutral)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fallback.calls)
}

func TestNew(t *testing.T) {
	s, err := New(Config{}, newTestLogger())
	require.NoError(t, err)
	assert.IsType(t, Templates{}, s)

	s, err = New(Config{Enabled: true, APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: "http://localhost:11434/v1"}, newTestLogger())
	require.NoError(t, err)
	assert.IsType(t, &Breaker{}, s)
}
