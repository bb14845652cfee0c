package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"orderwatch/internal/domain"
)

// Compile-time interface check.
var _ Bus = (*KafkaPublisher)(nil)

// KafkaPublisher writes order events to a Kafka topic keyed by owner, so
// each owner's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewKafkaPublisher creates an asynchronous publisher for topic.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	log = log.With("bus", "kafka", "topic", topic)
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Warn("publishing order events", "count", len(messages), "error", err)
				}
			},
		},
		log: log,
	}
}

// Send enqueues e for publication.
func (p *KafkaPublisher) Send(ctx context.Context, owner string, e domain.Event) {
	value, err := json.Marshal(e)
	if err != nil {
		p.log.Error("encoding order event", "order_id", e.OrderID, "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(owner),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
		Time: e.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("enqueueing order event", "order_id", e.OrderID, "error", err)
	}
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
