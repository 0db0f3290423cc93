package settlement

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryQueue is an in-process queue for single-node and test setups.
// Tasks do not survive a restart; the startup sweep re-enqueues them.
type MemoryQueue struct {
	tasks  chan Task
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

func NewMemoryQueue(capacity int, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryQueue{
		tasks:  make(chan Task, capacity),
		logger: logger,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-q.tasks:
			if err := handler(ctx, task); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				q.logger.Warn("Settlement task requeued",
					slog.String("transaction_id", task.TransactionID),
					slog.String("error", err.Error()))
				if err := q.Enqueue(ctx, task); err != nil {
					return err
				}
			}
		}
	}
}

// Len reports the number of tasks waiting for a consumer.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
