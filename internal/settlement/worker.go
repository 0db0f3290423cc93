package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"banking_ledger/internal/dlq"
)

// Recorder receives settlement outcomes, e.g. for metrics.
type Recorder interface {
	RecordSettlement(result string)
}

type WorkerConfig struct {
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
	SourceTopic string
}

// Worker drains a Queue, waiting for each task's NotBefore, retrying
// failed settlements with exponential backoff and dead-lettering tasks
// that exhaust their attempts.
type Worker struct {
	queue    Queue
	settler  Settler
	sink     dlq.Sink
	recorder Recorder
	cfg      WorkerConfig
	now      func() time.Time
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewWorker(queue Queue, settler Settler, sink dlq.Sink, recorder Recorder, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}

	return &Worker{
		queue:    queue,
		settler:  settler,
		sink:     sink,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// Start launches the consumers. They stop when ctx is cancelled; Wait
// blocks until they have returned.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.consume(ctx, i)
	}
}

func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context, id int) {
	defer w.wg.Done()

	w.logger.Info("Settlement worker started", slog.Int("worker_id", id))
	for {
		err := w.queue.Consume(ctx, w.Handle)
		if ctx.Err() != nil {
			w.logger.Info("Settlement worker stopping", slog.Int("worker_id", id))
			return
		}
		if errors.Is(err, ErrQueueClosed) {
			return
		}
		if err != nil {
			w.logger.Error("Settlement consumer failed, restarting",
				slog.Int("worker_id", id),
				slog.String("error", err.Error()))
		}
		if !sleep(ctx, w.cfg.Backoff) {
			return
		}
	}
}

// Handle settles one task. It returns an error only when the task should
// be redelivered: the context ended or the dead letter could not be written.
func (w *Worker) Handle(ctx context.Context, task Task) error {
	if wait := task.NotBefore.Sub(w.now()); wait > 0 {
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}

	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		lastErr = w.settler.Settle(ctx, task.TransactionID)
		if lastErr == nil {
			w.record("settled")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.logger.Warn("Settlement attempt failed",
			slog.String("transaction_id", task.TransactionID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))

		if attempt < w.cfg.MaxAttempts {
			if !sleep(ctx, w.cfg.Backoff<<(attempt-1)) {
				return ctx.Err()
			}
		}
	}

	w.record("dead_lettered")
	return w.deadLetter(ctx, task, lastErr)
}

func (w *Worker) deadLetter(ctx context.Context, task Task, cause error) error {
	if w.sink == nil {
		w.logger.Error("Settlement abandoned",
			slog.String("transaction_id", task.TransactionID),
			slog.String("error", cause.Error()))
		return nil
	}

	payload, _ := json.Marshal(task)
	// Independent context so the dead letter is written during shutdown too.
	dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	return w.sink.SendToDeadLetter(dlqCtx, dlq.FailedMessage{
		OriginalPayload: payload,
		Key:             task.TransactionID,
		ErrorType:       "settlement_failed",
		ErrorReason:     cause.Error(),
		FailedAt:        w.now().UTC(),
		RetryCount:      w.cfg.MaxAttempts,
		SourceTopic:     w.cfg.SourceTopic,
	})
}

func (w *Worker) record(result string) {
	if w.recorder != nil {
		w.recorder.RecordSettlement(result)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
