package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"banking_ledger/internal/dlq"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

type Indexer interface {
	Index(ctx context.Context, doc Document, raw []byte) error
	Close(ctx context.Context) error
}

const indexMapping = `{
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0,
		"index": {
			"refresh_interval": "1s"
		}
	},
	"mappings": {
		"properties": {
			"transactionId": { "type": "keyword" },
			"eventType": { "type": "keyword" },
			"userId": { "type": "keyword" },
			"accountId": { "type": "keyword" },
			"toAccountId": { "type": "keyword" },
			"txType": { "type": "keyword" },
			"amount": { "type": "scaled_float", "scaling_factor": 10000 },
			"amountRaw": { "type": "keyword" },
			"currency": { "type": "keyword" },
			"status": { "type": "keyword" },
			"riskScore": { "type": "integer" },
			"riskLevel": { "type": "keyword" },
			"occurredAt": { "type": "date" },
			"indexedAt": { "type": "date" },
			"signature": { "type": "keyword", "index": false }
		}
	}
}`

type ElasticConfig struct {
	Addresses   []string
	Username    string
	Password    string
	Index       string
	SourceTopic string
	// FlushInterval defaults to 5s.
	FlushInterval time.Duration
}

// ElasticIndexer batches documents into Elasticsearch through a bulk
// indexer. Documents the cluster rejects go to the dead-letter sink.
type ElasticIndexer struct {
	es          *elasticsearch.Client
	indexer     esutil.BulkIndexer
	index       string
	sourceTopic string
	sink        dlq.Sink
	logger      *slog.Logger
}

func NewElasticIndexer(ctx context.Context, cfg ElasticConfig, sink dlq.Sink, logger *slog.Logger) (*ElasticIndexer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Info(es.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}
	logger.Info("Connected to Elasticsearch", slog.String("status", res.Status()))

	c := &ElasticIndexer{
		es:          es,
		index:       cfg.Index,
		sourceTopic: cfg.SourceTopic,
		sink:        sink,
		logger:      logger,
	}
	if err := c.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index: %w", err)
	}

	c.indexer, err = esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        es,
		Index:         cfg.Index,
		NumWorkers:    2,
		FlushBytes:    5e+6,
		FlushInterval: cfg.FlushInterval,
		OnError: func(ctx context.Context, err error) {
			logger.Error("Bulk indexer error", slog.String("error", err.Error()))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}
	return c, nil
}

func (c *ElasticIndexer) ensureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.Status())
	}

	c.logger.Info("Created audit index", slog.String("index", c.index))
	return nil
}

func (c *ElasticIndexer) Index(ctx context.Context, doc Document, raw []byte) error {
	doc.IndexedAt = time.Now().UTC()
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	err = c.indexer.Add(ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: doc.ID(),
		Body:       bytes.NewReader(body),
		OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			errorType, errorReason := "client_error", ""
			if err != nil {
				errorReason = err.Error()
			} else {
				errorType, errorReason = res.Error.Type, res.Error.Reason
			}
			c.logger.Error("Failed to index audit document",
				slog.String("document_id", item.DocumentID),
				slog.String("error_type", errorType),
				slog.String("reason", errorReason))

			// The bulk flush context may already be cancelled on shutdown.
			dlqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			deadLetter(dlqCtx, c.sink, c.logger, dlq.FailedMessage{
				OriginalPayload: raw,
				Key:             doc.TransactionID,
				ErrorType:       errorType,
				ErrorReason:     errorReason,
				FailedAt:        time.Now().UTC(),
				SourceTopic:     c.sourceTopic,
			})
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add to bulk indexer: %w", err)
	}
	return nil
}

// Close flushes pending documents.
func (c *ElasticIndexer) Close(ctx context.Context) error {
	if err := c.indexer.Close(ctx); err != nil {
		return fmt.Errorf("failed to close bulk indexer: %w", err)
	}
	stats := c.indexer.Stats()
	c.logger.Info("Bulk indexer closed",
		slog.Uint64("flushed", stats.NumFlushed),
		slog.Uint64("failed", stats.NumFailed))
	return nil
}

// MemoryIndexer keeps documents by id; used in tests and when no cluster
// is configured.
type MemoryIndexer struct {
	mu   sync.Mutex
	docs map[string]Document
}

func NewMemoryIndexer() *MemoryIndexer {
	return &MemoryIndexer{docs: make(map[string]Document)}
}

func (m *MemoryIndexer) Index(ctx context.Context, doc Document, raw []byte) error {
	doc.IndexedAt = time.Now().UTC()
	m.mu.Lock()
	m.docs[doc.ID()] = doc
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndexer) Documents() []Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out
}

func (m *MemoryIndexer) Close(ctx context.Context) error { return nil }

func deadLetter(ctx context.Context, sink dlq.Sink, logger *slog.Logger, msg dlq.FailedMessage) {
	if sink == nil {
		return
	}
	if err := sink.SendToDeadLetter(ctx, msg); err != nil {
		logger.Error("Failed to send to DLQ",
			slog.String("key", msg.Key),
			slog.String("error", err.Error()))
	}
}
