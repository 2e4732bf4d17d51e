// Package consumer reads reminder events from Kafka with at-least-once semantics: offsets are
// committed only after a message was handled or given up on, and the inbox drops redeliveries.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates messages by event id.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// MaxAttempts bounds handler retries for one message before it is committed anyway.
	MaxAttempts int
	Backoff     time.Duration
}

type Consumer struct {
	reader   MessageReader
	inbox    Inbox
	handler  Handler
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
	tracer   trace.Tracer
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return NewWithReader(logger, inbox, reader, handler, cfg)
}

func NewWithReader(logger *slog.Logger, inbox Inbox, reader MessageReader, handler Handler, cfg Config) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{
		reader:   reader,
		inbox:    inbox,
		handler:  handler,
		logger:   logger,
		attempts: cfg.MaxAttempts,
		backoff:  cfg.Backoff,
		tracer:   otel.Tracer("clinicdesk/consumer"),
	}
}

// Run consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Run(ctx context.Context) {
	defer func() { _ = c.reader.Close() }()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch failed", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}
		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

// process handles msg, retrying with linear backoff. It returns false only when ctx ended
// before the message was settled, in which case the offset must stay uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, msg, meta, attempt)
		if err == nil {
			return true
		}
		if attempt >= c.attempts {
			c.logger.Error("giving up on event", "event_id", meta.EventID, "event_type", meta.EventType, "attempts", attempt, "err", err)
			return true
		}
		if !sleep(ctx, time.Duration(attempt)*c.backoff) {
			return false
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, meta kafkax.EventMeta, attempt int) error {
	ctx, span := c.tracer.Start(kafkax.ExtractTraceContext(ctx, msg), "consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.message.id", meta.EventID),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
			attribute.Int("clinicdesk.attempt", attempt),
		),
	)
	defer span.End()

	fresh, err := c.inbox.Record(ctx, meta.EventID, meta.EventType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox")
		c.logger.Warn("inbox record failed", "event_id", meta.EventID, "err", err)
		return err
	}
	if !fresh {
		c.logger.Info("duplicate event skipped", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}

	if err := c.handler(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler")
		c.logger.Warn("event handling failed", "event_id", meta.EventID, "attempt", attempt, "err", err)
		if ferr := c.inbox.Forget(ctx, meta.EventID); ferr != nil {
			c.logger.Error("inbox forget failed", "event_id", meta.EventID, "err", ferr)
		}
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
