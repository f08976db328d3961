package kafkax

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes a single deduplicated message. The offset is committed by
// ReadMessage before the handler runs, so a returned error is logged and the
// message is skipped, not redelivered. Durable retries belong in the handler
// (the reminder pipeline stores a job row and lets its worker retry).
type Handler func(ctx context.Context, msg kafka.Message) error

// Deduper records event ids so replays are ignored. Implemented per service
// by an inbox table.
type Deduper interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
}

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	dedupe  Deduper
	handler Handler
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topic   string
}

func NewConsumer(logger *slog.Logger, dedupe Deduper, cfg ConsumerConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		dedupe:  dedupe,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := ExtractEventMeta(msg)

		if c.dedupe != nil {
			ok, err := c.dedupe.Record(ctxSpan, meta.EventID, meta.EventType)
			if err != nil {
				c.logger.Error("inbox record failed", "err", err)
				span.RecordError(err)
				span.End()
				continue
			}
			if !ok {
				c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
				span.End()
				continue
			}
		}

		if err := c.handler(ctxSpan, msg); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
			span.End()
			continue
		}
		span.End()
	}
}
