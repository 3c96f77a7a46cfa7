package suggest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/TheHatt/revboard/internal/domain"
)

// BreakerConfig controls when the model endpoint is taken out of rotation.
type BreakerConfig struct {
	Name string

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts. 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open.
	Timeout time.Duration

	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns the breaker settings used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "suggest_llm",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "revboard_suggest_breaker_state",
			Help: "State of the suggestion circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	fallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revboard_suggest_fallback_total",
			Help: "Suggestions served from templates instead of the model",
		},
		[]string{"name", "reason"},
	)
)

func init() {
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(fallbackTotal)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Suggester drafts a reply to a review. LLM, Templates and Breaker implement it.
type Suggester interface {
	Suggest(ctx context.Context, review *domain.Review, tone domain.Tone) (string, error)
}

// Breaker guards a primary suggester with a circuit breaker and answers
// from the fallback whenever the primary fails or the circuit is open.
type Breaker struct {
	primary  Suggester
	fallback Suggester
	breaker  *gobreaker.CircuitBreaker[string]
	name     string
	logger   *slog.Logger
}

// NewBreaker wraps primary. fallback must not fail.
func NewBreaker(primary, fallback Suggester, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("suggestion breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Breaker{
		primary:  primary,
		fallback: fallback,
		breaker:  gobreaker.NewCircuitBreaker[string](settings),
		name:     cfg.Name,
		logger:   logger,
	}
}

// Suggest asks the primary suggester through the breaker.
func (b *Breaker) Suggest(ctx context.Context, review *domain.Review, tone domain.Tone) (string, error) {
	text, err := b.breaker.Execute(func() (string, error) {
		return b.primary.Suggest(ctx, review, tone)
	})
	if err == nil {
		return text, nil
	}

	// The caller going away is not the model's fault.
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	reason := "error"
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		reason = "open"
	}
	fallbackTotal.WithLabelValues(b.name, reason).Inc()
	b.logger.WarnContext(ctx, "serving template suggestion",
		slog.String("breaker", b.name),
		slog.String("reason", reason),
		slog.String("review_id", review.ID),
		slog.String("error", err.Error()),
	)
	return b.fallback.Suggest(ctx, review, tone)
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}
