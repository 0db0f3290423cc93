package settlement

import (
	"context"
	"errors"
	"time"
)

// Task asks for one transaction to be settled no earlier than NotBefore.
type Task struct {
	TransactionID string    `json:"transaction_id"`
	NotBefore     time.Time `json:"not_before"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Handler processes one task. A nil return acknowledges it; an error
// leaves it for redelivery.
type Handler func(ctx context.Context, task Task) error

// Queue delivers tasks at least once.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	// Consume blocks, feeding tasks to handler until ctx is done or the
	// queue fails.
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// Settler completes a transaction. Settling an already terminal
// transaction must succeed without changing it.
type Settler interface {
	Settle(ctx context.Context, transactionID string) error
}

var ErrQueueClosed = errors.New("settlement queue closed")
