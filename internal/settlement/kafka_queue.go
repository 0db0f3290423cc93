package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaQueue stores tasks on a Kafka topic. Offsets are committed only
// after the handler returns nil.
type KafkaQueue struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	groupID string
	logger  *slog.Logger
}

func NewKafkaQueue(brokers []string, topic, groupID string, logger *slog.Logger) *KafkaQueue {
	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaQueue{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		},
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
		logger:  logger,
	}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal settlement task: %w", err)
	}

	if err := q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.TransactionID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("enqueue settlement for %s: %w", task.TransactionID, err)
	}
	return nil
}

// Consume joins the consumer group with its own reader, so several
// concurrent Consume calls split the topic's partitions between them.
func (q *KafkaQueue) Consume(ctx context.Context, handler Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.brokers,
		Topic:    q.topic,
		GroupID:  q.groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			q.logger.Error("Failed to close settlement reader", slog.String("error", err.Error()))
		}
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("fetch settlement task: %w", err)
		}

		var task Task
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			q.logger.Error("Dropping malformed settlement task",
				slog.String("key", string(msg.Key)),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()))
		} else if err := handler(ctx, task); err != nil {
			return fmt.Errorf("handle settlement for %s: %w", task.TransactionID, err)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit settlement offset: %w", err)
		}
	}
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}
