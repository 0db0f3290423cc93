package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"banking_ledger/internal/dlq"
	"banking_ledger/internal/domain"
	"banking_ledger/pkg/crypto"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// fakeReader replays a fixed set of messages and cancels the consumer
// once they are exhausted.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	fetchErr  error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return kafka.Message{}, r.fetchErr
	}
	if len(r.messages) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type failingIndexer struct{ MemoryIndexer }

func (f *failingIndexer) Index(ctx context.Context, doc Document, raw []byte) error {
	return errors.New("cluster unavailable")
}

func sampleEvent(t *testing.T, eventType domain.EventType) []byte {
	t.Helper()
	tx := domain.NewTransaction("user-1", "acc-1", domain.TypePayment, decimal.RequireFromString("125.5"), "USD")
	tx.RiskScore = 35
	event := domain.NewTransactionEvent(eventType, tx, domain.RiskMedium)
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func runConsumer(t *testing.T, indexer Indexer, sink dlq.Sink, messages ...kafka.Message) *fakeReader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reader := &fakeReader{messages: messages, cancel: cancel}
	consumer := NewConsumer(reader, indexer, crypto.NewSigner("audit-secret", nil), sink, "banking.transactions", nil)
	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	return reader
}

func TestConsumer_IndexesEvents(t *testing.T) {
	indexer := NewMemoryIndexer()
	sink := dlq.NewMemorySink(nil)

	created := sampleEvent(t, domain.EventTransactionCreated)
	settled := sampleEvent(t, domain.EventTransactionSettled)
	reader := runConsumer(t, indexer, sink,
		kafka.Message{Key: []byte("k1"), Value: created, Offset: 1},
		kafka.Message{Key: []byte("k2"), Value: settled, Offset: 2},
	)

	docs := indexer.Documents()
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for _, doc := range docs {
		if doc.AmountRaw != "125.5" || doc.Amount != 125.5 || doc.RiskLevel != "MEDIUM" || doc.Signature == "" {
			t.Errorf("unexpected document %+v", doc)
		}
	}
	if len(reader.committed) != 2 {
		t.Errorf("expected both offsets committed, got %v", reader.committed)
	}
	if len(sink.Messages()) != 0 {
		t.Errorf("expected no dead letters, got %d", len(sink.Messages()))
	}
}

func TestConsumer_RedeliveryOverwrites(t *testing.T) {
	indexer := NewMemoryIndexer()
	raw := sampleEvent(t, domain.EventTransactionCreated)

	runConsumer(t, indexer, nil,
		kafka.Message{Value: raw, Offset: 1},
		kafka.Message{Value: raw, Offset: 2},
	)

	if got := len(indexer.Documents()); got != 1 {
		t.Errorf("expected redelivered event to share a document id, got %d documents", got)
	}
}

func TestConsumer_DeadLettersBadMessages(t *testing.T) {
	indexer := NewMemoryIndexer()
	sink := dlq.NewMemorySink(nil)

	reader := runConsumer(t, indexer, sink,
		kafka.Message{Key: []byte("garbage"), Value: []byte("not json"), Offset: 1},
		kafka.Message{Key: []byte("no-id"), Value: []byte(`{"type":"transaction.created","amount":"1"}`), Offset: 2},
		kafka.Message{Key: []byte("ok"), Value: sampleEvent(t, domain.EventTransactionCreated), Offset: 3},
	)

	letters := sink.Messages()
	if len(letters) != 2 {
		t.Fatalf("expected 2 dead letters, got %d", len(letters))
	}
	if letters[0].ErrorType != "decode_error" || letters[1].ErrorType != "invalid_event" {
		t.Errorf("unexpected error types %s, %s", letters[0].ErrorType, letters[1].ErrorType)
	}
	if !json.Valid(letters[0].OriginalPayload) {
		t.Errorf("dead letter payload must stay valid JSON, got %s", letters[0].OriginalPayload)
	}
	if len(indexer.Documents()) != 1 || len(reader.committed) != 3 {
		t.Errorf("expected 1 document and 3 commits, got %d and %v", len(indexer.Documents()), reader.committed)
	}
}

func TestConsumer_IndexFailureIsDeadLettered(t *testing.T) {
	sink := dlq.NewMemorySink(nil)

	runConsumer(t, &failingIndexer{}, sink, kafka.Message{Value: sampleEvent(t, domain.EventTransactionCreated)})

	if letters := sink.Messages(); len(letters) != 1 || letters[0].ErrorType != "index_error" {
		t.Errorf("expected one index_error dead letter, got %+v", letters)
	}
}

func TestConsumer_FetchErrorStops(t *testing.T) {
	reader := &fakeReader{fetchErr: errors.New("broker gone")}
	consumer := NewConsumer(reader, NewMemoryIndexer(), nil, nil, "t", nil)

	if err := consumer.Run(context.Background()); err == nil {
		t.Fatal("expected fetch error to stop the consumer")
	}
}

func TestNewDocument_Signature(t *testing.T) {
	signer := crypto.NewSigner("audit-secret", nil)
	var event domain.TransactionEvent
	if err := json.Unmarshal(sampleEvent(t, domain.EventTransactionCreated), &event); err != nil {
		t.Fatal(err)
	}

	doc, err := NewDocument(event, signer)
	if err != nil {
		t.Fatal(err)
	}
	amount := decimal.RequireFromString(doc.AmountRaw)
	if err := signer.VerifyTransaction(doc.TransactionID, amount, doc.Currency, doc.OccurredAt.Unix(), doc.Signature); err != nil {
		t.Errorf("expected signature to verify: %v", err)
	}

	event.Amount = "lots"
	if _, err := NewDocument(event, signer); err == nil {
		t.Error("expected invalid amount to be rejected")
	}
}

func TestElasticIndexer(t *testing.T) {
	addr := os.Getenv("ELASTICSEARCH_URL")
	if addr == "" {
		t.Skip("ELASTICSEARCH_URL not set")
	}

	ctx := context.Background()
	sink := dlq.NewMemorySink(nil)
	indexer, err := NewElasticIndexer(ctx, ElasticConfig{
		Addresses:     []string{addr},
		Index:         "banking-transactions-test",
		FlushInterval: 100 * time.Millisecond,
	}, sink, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	raw := sampleEvent(t, domain.EventTransactionCreated)
	var event domain.TransactionEvent
	_ = json.Unmarshal(raw, &event)
	doc, _ := NewDocument(event, nil)
	if err := indexer.Index(ctx, doc, raw); err != nil {
		t.Fatal(err)
	}
	if err := indexer.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if len(sink.Messages()) != 0 {
		t.Errorf("unexpected dead letters: %+v", sink.Messages())
	}
}
