package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"banking_ledger/internal/dlq"
)

type fakeSettler struct {
	mu       sync.Mutex
	failures int
	calls    map[string]int
	settled  chan string
}

func newFakeSettler(failures int) *fakeSettler {
	return &fakeSettler{failures: failures, calls: make(map[string]int), settled: make(chan string, 10)}
}

func (s *fakeSettler) Settle(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	if s.calls[id] <= s.failures {
		return errors.New("database unavailable")
	}
	s.settled <- id
	return nil
}

type countingRecorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (r *countingRecorder) RecordSettlement(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string]int)
	}
	r.results[result]++
}

func TestWorker_HandleRetriesThenSucceeds(t *testing.T) {
	settler := newFakeSettler(2)
	recorder := &countingRecorder{}
	w := NewWorker(NewMemoryQueue(1, nil), settler, dlq.NewMemorySink(nil), recorder,
		WorkerConfig{MaxAttempts: 3, Backoff: time.Millisecond}, nil)

	if err := w.Handle(context.Background(), Task{TransactionID: "tx-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settler.calls["tx-1"] != 3 {
		t.Errorf("expected 3 attempts, got %d", settler.calls["tx-1"])
	}
	if recorder.results["settled"] != 1 {
		t.Errorf("expected one settled record, got %v", recorder.results)
	}
}

func TestWorker_HandleDeadLettersAfterMaxAttempts(t *testing.T) {
	settler := newFakeSettler(10)
	sink := dlq.NewMemorySink(nil)
	w := NewWorker(NewMemoryQueue(1, nil), settler, sink, nil,
		WorkerConfig{MaxAttempts: 2, Backoff: time.Millisecond, SourceTopic: "banking.settlement"}, nil)

	if err := w.Handle(context.Background(), Task{TransactionID: "tx-2"}); err != nil {
		t.Fatalf("expected the task to be acknowledged after dead-lettering, got %v", err)
	}

	messages := sink.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(messages))
	}
	if messages[0].Key != "tx-2" || messages[0].RetryCount != 2 || messages[0].SourceTopic != "banking.settlement" {
		t.Errorf("unexpected dead letter %+v", messages[0])
	}
}

func TestWorker_HandleWaitsForNotBefore(t *testing.T) {
	settler := newFakeSettler(0)
	w := NewWorker(NewMemoryQueue(1, nil), settler, nil, nil, WorkerConfig{MaxAttempts: 1}, nil)

	start := time.Now()
	task := Task{TransactionID: "tx-3", NotBefore: start.Add(50 * time.Millisecond)}
	if err := w.Handle(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected to wait for not-before, returned after %s", elapsed)
	}
}

func TestWorker_HandleStopsOnCancel(t *testing.T) {
	settler := newFakeSettler(0)
	w := NewWorker(NewMemoryQueue(1, nil), settler, nil, nil, WorkerConfig{MaxAttempts: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Handle(ctx, Task{TransactionID: "tx-4", NotBefore: time.Now().Add(time.Hour)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if settler.calls["tx-4"] != 0 {
		t.Error("expected no settle call before not-before")
	}
}

func TestWorker_StartDrainsMemoryQueue(t *testing.T) {
	queue := NewMemoryQueue(10, nil)
	settler := newFakeSettler(0)
	w := NewWorker(queue, settler, nil, nil, WorkerConfig{Workers: 2, MaxAttempts: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	for _, id := range []string{"a", "b", "c"} {
		if err := queue.Enqueue(ctx, Task{TransactionID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	seen := make(map[string]bool)
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case id := <-settler.settled:
			seen[id] = true
		case <-timeout:
			t.Fatalf("timed out, settled %v", seen)
		}
	}

	cancel()
	w.Wait()
}

func TestMemoryQueue_EnqueueAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1, nil)
	_ = queue.Close()

	if err := queue.Enqueue(context.Background(), Task{TransactionID: "x"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}
