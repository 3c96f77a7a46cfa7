// Package suggest drafts replies to reviews, either with an
// OpenAI-compatible model or from built-in templates.
package suggest

import (
	"log/slog"
	"time"
)

// Config selects and configures the suggestion backend.
type Config struct {
	// Enabled switches from templates to the model.
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// New returns the suggester for cfg. With the model disabled it returns
// Templates, otherwise the model guarded by a breaker that falls back to
// Templates.
func New(cfg Config, logger *slog.Logger) (Suggester, error) {
	if !cfg.Enabled {
		return Templates{}, nil
	}

	llm, err := NewLLM(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("reply suggestions use model",
		slog.String("model", cfg.Model),
		slog.String("base_url", cfg.BaseURL),
	)
	return NewBreaker(llm, Templates{}, DefaultBreakerConfig(), logger), nil
}
