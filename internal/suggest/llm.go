package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/TheHatt/revboard/internal/domain"
)

// ErrEmptySuggestion is returned when the model produced no text.
var ErrEmptySuggestion = errors.New("model returned no suggestion")

// generator is the part of llms.Model the suggester needs.
type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

var toneInstructions = map[domain.Tone]string{
	domain.ToneNeutral:  "Use a neutral, polite tone.",
	domain.ToneFriendly: "Use a warm and friendly tone.",
	domain.ToneFormal:   "Use a formal tone and address the reviewer formally.",
	domain.ToneDetailed: "Write a detailed reply that addresses the points the reviewer raised.",
	domain.ToneShort:    "Keep the reply to one or two short sentences.",
}

// LLM drafts replies with an OpenAI-compatible chat model.
type LLM struct {
	model   generator
	timeout time.Duration
}

// NewLLM creates an LLM suggester for the configured endpoint.
func NewLLM(cfg Config) (*LLM, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create suggestion model: %w", err)
	}

	return &LLM{model: model, timeout: cfg.Timeout}, nil
}

// Suggest asks the model for a reply to review.
func (l *LLM) Suggest(ctx context.Context, review *domain.Review, tone domain.Tone) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	resp, err := l.model.GenerateContent(ctx, prompt(review, tone),
		llms.WithTemperature(0.7),
		llms.WithMaxTokens(600),
	)
	if err != nil {
		return "", fmt.Errorf("generate suggestion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptySuggestion
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptySuggestion
	}
	if n := []rune(text); len(n) > domain.MaxReplyLength {
		text = string(n[:domain.MaxReplyLength])
	}
	return text, nil
}

func prompt(review *domain.Review, tone domain.Tone) []llms.MessageContent {
	instruction, ok := toneInstructions[tone]
	if !ok {
		instruction = toneInstructions[domain.ToneNeutral]
	}

	system := "You write replies on behalf of a business to customer reviews. " +
		"Reply in the language of the review, or in German when the review has no text. " +
		instruction + " Return only the reply text without a subject line."

	author := domain.AnonymousAuthor
	if review.AuthorName != nil && strings.TrimSpace(*review.AuthorName) != "" {
		author = strings.TrimSpace(*review.AuthorName)
	}
	text := "(no text)"
	if review.Text != nil && strings.TrimSpace(*review.Text) != "" {
		text = strings.TrimSpace(*review.Text)
	}

	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman,
			fmt.Sprintf("Reviewer: %s\nRating: %d of 5 stars\nReview: %s", author, review.Rating, text)),
	}
}
