package storage

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter publishes JSON-encoded points, keyed by sensor so one sensor's
// points stay ordered on a single partition.
type KafkaWriter struct {
	writer *kafka.Writer
}

// NewKafkaWriter creates a synchronous producer for topic
func NewKafkaWriter(brokers []string, topic string) *KafkaWriter {
	return &KafkaWriter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

func (w *KafkaWriter) Write(ctx context.Context, bucket, org string, p Point) error {
	value, err := encodeRecord(bucket, org, p)
	if err != nil {
		return err
	}

	key := p.Tags["sensor"]
	if key == "" {
		key = bucket
	}
	if err := w.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (w *KafkaWriter) Close() error {
	return w.writer.Close()
}
