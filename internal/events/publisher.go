package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"banking_ledger/internal/domain"

	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, event domain.TransactionEvent) error
	Close() error
}

// KafkaPublisher writes lifecycle events keyed by transaction id, so all
// events of one transaction land on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.TransactionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", event.Type, event.TransactionID, err)
	}

	p.logger.Debug("Event published",
		slog.String("type", string(event.Type)),
		slog.String("transaction_id", event.TransactionID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

const memoryPublisherCapacity = 1000

// MemoryPublisher keeps the most recent events in memory; used when Kafka
// is not configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []domain.TransactionEvent
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, event domain.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if len(p.events) > memoryPublisherCapacity {
		p.events = p.events[len(p.events)-memoryPublisherCapacity:]
	}
	return nil
}

func (p *MemoryPublisher) Events() []domain.TransactionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TransactionEvent(nil), p.events...)
}

// OfType returns the recorded events of type t.
func (p *MemoryPublisher) OfType(t domain.EventType) []domain.TransactionEvent {
	var out []domain.TransactionEvent
	for _, e := range p.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (p *MemoryPublisher) Close() error { return nil }
