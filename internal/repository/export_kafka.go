package repository

import (
	"context"
	"fmt"

	"VolScreen/internal/domain/models"
	drepo "VolScreen/internal/domain/repository"
	"VolScreen/pkg/kafka"
	"VolScreen/pkg/logger"
)

// KafkaExporter publishes fetched records to a topic, keyed by symbol so a
// partition always carries a symbol's records in order.
type KafkaExporter struct {
	producer *kafka.Producer
	topic    string
	log      *logger.Logger
}

// NewKafkaExporter creates a Kafka-backed exporter.
func NewKafkaExporter(producer *kafka.Producer, topic string, log *logger.Logger) drepo.Exporter {
	return &KafkaExporter{producer: producer, topic: topic, log: log}
}

// Export publishes the batch in one writer call.
func (e *KafkaExporter) Export(ctx context.Context, records []*models.MarketRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, kafka.Message{Key: []byte(rec.Symbol), Value: rec})
	}
	if err := e.producer.PublishBatch(ctx, e.topic, msgs); err != nil {
		return fmt.Errorf("kafka export: %w", err)
	}
	e.log.Debug("exported records to kafka",
		logger.String("topic", e.topic), logger.Int("count", len(records)))
	return nil
}

// Close closes the underlying producer.
func (e *KafkaExporter) Close() error {
	return e.producer.Close()
}
