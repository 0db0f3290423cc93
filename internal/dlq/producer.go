package dlq

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// FailedMessage is a payload that could not be handled after retries.
type FailedMessage struct {
	OriginalPayload json.RawMessage `json:"originalPayload"`
	Key             string          `json:"key"`
	ErrorType       string          `json:"errorType"`
	ErrorReason     string          `json:"errorReason"`
	FailedAt        time.Time       `json:"failedAt"`
	RetryCount      int             `json:"retryCount"`
	SourceTopic     string          `json:"sourceTopic"`
}

type Sink interface {
	SendToDeadLetter(ctx context.Context, msg FailedMessage) error
}

// Producer wraps a Kafka writer for DLQ operations.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger *slog.Logger
}

func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	logger.Info("DLQ producer initialized", slog.String("topic", topic))
	return &Producer{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

func (p *Producer) SendToDeadLetter(ctx context.Context, msg FailedMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// Keyed by the source key so failures of one transaction share a partition.
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: payload,
	})
	if err != nil {
		p.logger.Error("Failed to send message to DLQ",
			slog.String("key", msg.Key),
			slog.String("error", err.Error()))
		return err
	}

	p.logger.Warn("Message sent to DLQ",
		slog.String("key", msg.Key),
		slog.String("topic", p.topic),
		slog.String("reason", msg.ErrorReason))
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// MemorySink keeps dead letters in memory and logs them. It backs the
// in-process settlement queue when no brokers are configured.
type MemorySink struct {
	mu       sync.Mutex
	messages []FailedMessage
	logger   *slog.Logger
}

func NewMemorySink(logger *slog.Logger) *MemorySink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemorySink{logger: logger}
}

func (s *MemorySink) SendToDeadLetter(ctx context.Context, msg FailedMessage) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.logger.Warn("Message dead-lettered",
		slog.String("key", msg.Key),
		slog.String("source", msg.SourceTopic),
		slog.String("reason", msg.ErrorReason))
	return nil
}

func (s *MemorySink) Messages() []FailedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailedMessage(nil), s.messages...)
}
