package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/TheHatt/revboard/pkg/logger"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// ErrPermanent marks a handler failure that retrying cannot fix. Wrap it to
// skip the remaining attempts and dead-letter the message at once.
var ErrPermanent = errors.New("permanent failure")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type deadLetterer interface {
	Send(ctx context.Context, msg kafka.Message, cause error, group string) error
}

// ConsumerConfig configures a group consumer on one topic.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topic       string
	MaxAttempts int
	Backoff     time.Duration
}

// Consumer reads a topic in a consumer group and commits each message after
// it has been handled, dead-lettered, or found undecodable.
type Consumer struct {
	reader      messageReader
	topic       string
	group       string
	handler     Handler
	dlq         deadLetterer
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

// NewConsumer builds a consumer. dlq may be nil, in which case exhausted
// messages are logged and skipped.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq *DeadLetterQueue, l *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c := newConsumer(r, cfg, handler, l)
	if dlq != nil {
		c.dlq = dlq
	}
	return c
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, l *slog.Logger) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	return &Consumer{
		reader:      r,
		topic:       cfg.Topic,
		group:       cfg.GroupID,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		logger:      l,
	}
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started", slog.String("topic", c.topic), slog.String("group", c.group))
	defer c.logger.Info("consumer stopped", slog.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.ErrorContext(ctx, "fetch message", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		messagesConsumed.WithLabelValues(msg.Topic, "invalid").Inc()
		c.logger.ErrorContext(ctx, "undecodable message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.deadLetter(ctx, msg, err)
		return c.commit(ctx, msg)
	}

	hctx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
	if event.CorrelationID != "" {
		hctx = logger.WithCorrelationID(hctx, event.CorrelationID)
	}

	start := time.Now()
	herr := c.handleWithRetry(hctx, event, msg)
	handleDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if herr != nil {
		messagesConsumed.WithLabelValues(msg.Topic, "failed").Inc()
		c.logger.ErrorContext(hctx, "giving up on message",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int64("offset", msg.Offset),
			slog.String("error", herr.Error()),
		)
		c.deadLetter(ctx, msg, herr)
	} else {
		messagesConsumed.WithLabelValues(msg.Topic, "ok").Inc()
	}
	return c.commit(ctx, msg)
}

func (c *Consumer) handleWithRetry(ctx context.Context, event *Event, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler(ctx, event); err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) || attempt == c.maxAttempts {
			break
		}
		c.logger.WarnContext(ctx, "handler failed, retrying",
			slog.String("event_type", event.EventType),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Send(ctx, msg, cause, c.group); err != nil {
		c.logger.ErrorContext(ctx, "dead-letter failed", slog.String("error", err.Error()))
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
	}
	return nil
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

type headerCarrier []kafka.Header

var _ propagation.TextMapCarrier = headerCarrier(nil)

func (h headerCarrier) Get(key string) string {
	for _, hd := range h {
		if hd.Key == key {
			return string(hd.Value)
		}
	}
	return ""
}

func (h headerCarrier) Set(string, string) {}

func (h headerCarrier) Keys() []string {
	keys := make([]string, len(h))
	for i, hd := range h {
		keys[i] = hd.Key
	}
	return keys
}
