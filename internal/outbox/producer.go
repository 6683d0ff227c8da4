package outbox

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer writes membership events through a single kafka.Writer that
// carries no default topic, so each batch is routed by the topic the
// dispatcher passes in.
//
// Messages are keyed by activity name and balanced with kafka.Hash. Kafka
// only orders messages within a partition, and a signup followed by a
// removal for the same activity must reach the audit consumer in that order,
// so every event for one activity has to land on the same partition.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer for the given brokers.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Compression:            kafka.Snappy,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

// WriteMessages stamps topic on each message and writes the batch.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	routed := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		msg.Topic = topic
		routed[i] = msg
	}
	return p.writer.WriteMessages(ctx, routed...)
}

// Close flushes pending writes and releases broker connections.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
