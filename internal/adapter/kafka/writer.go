package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/wildfire-water-etl/internal/config"
	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes feature outcomes to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured outcome topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one outcome keyed by feature ID, so every outcome of a
// feature lands on the same partition.
func (w *Writer) Publish(ctx context.Context, o domain.Outcome) error {
	msg, err := serializeToMessage(o)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish outcome %s: %w", o.FeatureID, err)
	}
	w.logger.Debug("outcome published", "feature_id", o.FeatureID, "status", o.Status)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an Outcome into a Kafka message.
func serializeToMessage(o domain.Outcome) (kafkago.Message, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize outcome: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(o.FeatureID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(o.Status)},
			{Key: "run_id", Value: []byte(o.RunID)},
			{Key: "finished_at", Value: []byte(o.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
