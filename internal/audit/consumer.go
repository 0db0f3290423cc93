package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"banking_ledger/internal/dlq"
	"banking_ledger/internal/domain"
	"banking_ledger/pkg/crypto"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Consumer copies transaction events from Kafka into the audit index.
// Messages that cannot be decoded or indexed are dead-lettered and their
// offsets committed.
type Consumer struct {
	reader  MessageReader
	indexer Indexer
	signer  *crypto.Signer
	sink    dlq.Sink
	topic   string
	logger  *slog.Logger
}

func NewConsumer(reader MessageReader, indexer Indexer, signer *crypto.Signer, sink dlq.Sink, topic string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:  reader,
		indexer: indexer,
		signer:  signer,
		sink:    sink,
		topic:   topic,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled or the reader fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Audit consumer started", slog.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Audit consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch event: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit event offset: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var event domain.TransactionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.fail(ctx, msg, "decode_error", err)
		return
	}

	doc, err := NewDocument(event, c.signer)
	if err != nil {
		c.fail(ctx, msg, "invalid_event", err)
		return
	}

	if err := c.indexer.Index(ctx, doc, msg.Value); err != nil {
		c.fail(ctx, msg, "index_error", err)
		return
	}

	c.logger.Debug("Event queued for indexing",
		slog.String("transaction_id", doc.TransactionID),
		slog.String("event_type", doc.EventType),
		slog.Int64("offset", msg.Offset))
}

func (c *Consumer) fail(ctx context.Context, msg kafka.Message, errorType string, err error) {
	c.logger.Error("Failed to audit event",
		slog.String("key", string(msg.Key)),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("error_type", errorType),
		slog.String("error", err.Error()))

	payload := msg.Value
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(msg.Value))
	}
	deadLetter(ctx, c.sink, c.logger, dlq.FailedMessage{
		OriginalPayload: payload,
		Key:             string(msg.Key),
		ErrorType:       errorType,
		ErrorReason:     err.Error(),
		FailedAt:        time.Now().UTC(),
		SourceTopic:     c.topic,
	})
}

func (c *Consumer) Close(ctx context.Context) error {
	return errors.Join(c.indexer.Close(ctx), c.reader.Close())
}
