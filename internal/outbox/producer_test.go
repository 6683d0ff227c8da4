package outbox

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaProducerKeepsActivityEventsOnOnePartition(t *testing.T) {
	producer := NewKafkaProducer([]string{"localhost:9092"})
	t.Cleanup(func() { _ = producer.Close() })

	require.Empty(t, producer.writer.Topic)
	require.IsType(t, &kafka.Hash{}, producer.writer.Balancer)
	require.Equal(t, kafka.RequireAll, producer.writer.RequiredAcks)

	msg := func(key string) kafka.Message { return kafka.Message{Key: []byte(key)} }
	partitions := []int{0, 1, 2, 3, 4, 5}
	balancer := producer.writer.Balancer
	first := balancer.Balance(msg("Chess Club"), partitions...)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, balancer.Balance(msg("Chess Club"), partitions...))
	}
}
