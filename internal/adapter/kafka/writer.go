package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nexusdrive/delivery-etl/internal/config"
	"github.com/nexusdrive/delivery-etl/internal/domain"
)

// Writer publishes canonical delivery records to a Kafka topic.
// It implements pipeline.Loader.
type Writer struct {
	writer    *kafkago.Writer
	batchSize int
	logger    *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
	}
	return &Writer{writer: w, batchSize: cfg.BatchSize, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// LoadBatch serializes records and publishes them in chunks of the
// configured batch size. Records are keyed by order id so all versions of
// an order land on the same partition.
func (w *Writer) LoadBatch(ctx context.Context, runID string, records []domain.CanonicalDelivery) error {
	if len(records) == 0 {
		return nil
	}
	size := max(w.batchSize, 1)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		msgs := make([]kafkago.Message, 0, end-start)
		for i := start; i < end; i++ {
			msg, err := serializeToMessage(runID, records[i])
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish canonical records: %w", err)
		}
	}
	w.logger.Debug("published canonical records", "topic", w.writer.Topic, "count", len(records), "run_id", runID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a canonical record into a Kafka message.
func serializeToMessage(runID string, rec domain.CanonicalDelivery) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize canonical record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.OrderID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(rec.Source)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
