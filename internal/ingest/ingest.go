// Package ingest feeds the Phase-1 builder from a Kafka topic, as an
// alternative to reading a collection file. Each message value is a JSON
// document; the builder assigns internal docIDs in consumption order.
package ingest

import (
	"context"
	"log/slog"

	"github.com/yuqi-zhai/passagerank/internal/builder"
	"github.com/yuqi-zhai/passagerank/pkg/kafka"
)

// Document is the wire format of one collection document on the topic.
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Source wraps a Kafka consumer to drive the Phase-1 builder.
type Source struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a Source backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *Source {
	return &Source{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "ingest-source"),
	}
}

// Start begins consuming documents. It blocks until ctx is cancelled; the
// caller then finalizes the builder.
func (s *Source) Start(ctx context.Context) error {
	s.logger.Info("document ingest starting")
	return s.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that appends every document
// to the builder. Undecodable messages are logged and skipped so one bad
// record never stalls the partition. The builder is single-writer, so this
// handler must run on a single consumer.
func HandleMessage(b *builder.Builder) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-source")
	return func(ctx context.Context, key []byte, value []byte) error {
		doc, err := kafka.DecodeJSON[Document](value)
		if err != nil {
			logger.Error("failed to decode document",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if doc.ID == "" {
			logger.Error("skipping document without id", "key", string(key))
			return nil
		}
		if err := b.AddDocument(doc.ID, doc.Content); err != nil {
			return err
		}
		logger.Debug("document ingested", "doc_id", doc.ID, "internal_id", b.DocCount()-1)
		return nil
	}
}
