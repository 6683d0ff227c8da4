package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/clubsignup/internal/events"
)

func TestDispatcherPublishesQueuedEvents(t *testing.T) {
	producer := &stubProducer{}
	dispatcher := NewDispatcher(producer, testConfig())

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)

	require.NoError(t, dispatcher.Publish(ctx, newEvent("Chess Club", events.EventParticipantSignedUp)))
	require.NoError(t, dispatcher.Publish(ctx, newEvent("Chess Club", events.EventParticipantRemoved)))

	cancel()
	dispatcher.Wait()

	msgs := producer.allMessages()
	require.Len(t, msgs, 2)
	require.Equal(t, "activity_membership", producer.writes[0].topic)
	require.Equal(t, []byte("Chess Club"), msgs[0].Key)
	require.Equal(t, events.EventParticipantSignedUp, headerString(msgs[0], events.HeaderEventType))
	require.Equal(t, events.EventParticipantRemoved, headerString(msgs[1], events.HeaderEventType))

	var decoded events.MembershipEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	require.Equal(t, "test_user@example.com", decoded.Email)

	require.InDelta(t, beforeDelivered+2, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)
}

func TestDispatcherSplitsIntoBatches(t *testing.T) {
	producer := &stubProducer{}
	cfg := testConfig()
	cfg.BatchSize = 2
	dispatcher := NewDispatcher(producer, cfg)

	for i := 0; i < 5; i++ {
		require.NoError(t, dispatcher.Publish(context.Background(), newEvent("Tennis Club", events.EventParticipantSignedUp)))
	}
	dispatcher.drain(context.Background())

	require.Len(t, producer.writes, 3)
	require.Len(t, producer.allMessages(), 5)
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	producer := &stubProducer{failures: 2, err: errors.New("leader not available")}
	dispatcher := NewDispatcher(producer, testConfig())

	beforeRetries := testutil.ToFloat64(retryCounter)

	require.NoError(t, dispatcher.Publish(context.Background(), newEvent("Chess Club", events.EventParticipantSignedUp)))
	dispatcher.drain(context.Background())

	require.Equal(t, 3, producer.attempts)
	require.Len(t, producer.allMessages(), 1)
	require.InDelta(t, beforeRetries+2, testutil.ToFloat64(retryCounter), 0.0001)
}

func TestDispatcherDropsAfterRetriesExhausted(t *testing.T) {
	producer := &stubProducer{failures: 100, err: errors.New("broker down")}
	dispatcher := NewDispatcher(producer, testConfig())

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDropped := testutil.ToFloat64(droppedCounter.WithLabelValues("retries_exhausted"))

	require.NoError(t, dispatcher.Publish(context.Background(), newEvent("Chess Club", events.EventParticipantSignedUp)))
	dispatcher.drain(context.Background())

	require.Equal(t, 4, producer.attempts)
	require.Empty(t, producer.allMessages())
	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDropped+1, testutil.ToFloat64(droppedCounter.WithLabelValues("retries_exhausted")), 0.0001)
}

func TestDispatcherRedeliversBatchInterruptedByShutdown(t *testing.T) {
	producer := newBlockingProducer(false)
	cfg := testConfig()
	cfg.PollInterval = 5 * time.Millisecond
	dispatcher := NewDispatcher(producer, cfg)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeExhausted := testutil.ToFloat64(droppedCounter.WithLabelValues("retries_exhausted"))
	beforeShutdown := testutil.ToFloat64(droppedCounter.WithLabelValues("shutdown"))

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)

	require.NoError(t, dispatcher.Publish(ctx, newEvent("Chess Club", events.EventParticipantSignedUp)))
	select {
	case <-producer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never started writing")
	}

	cancel()
	dispatcher.Wait()

	require.Len(t, producer.messages(), 1)
	require.InDelta(t, beforeFailed, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeExhausted, testutil.ToFloat64(droppedCounter.WithLabelValues("retries_exhausted")), 0.0001)
	require.InDelta(t, beforeShutdown, testutil.ToFloat64(droppedCounter.WithLabelValues("shutdown")), 0.0001)
}

func TestDispatcherCountsEventsLeftAfterFlushTimeout(t *testing.T) {
	producer := newBlockingProducer(true)
	cfg := testConfig()
	cfg.FlushTimeout = 20 * time.Millisecond
	dispatcher := NewDispatcher(producer, cfg)

	beforeExhausted := testutil.ToFloat64(droppedCounter.WithLabelValues("retries_exhausted"))
	beforeShutdown := testutil.ToFloat64(droppedCounter.WithLabelValues("shutdown"))

	require.NoError(t, dispatcher.Publish(context.Background(), newEvent("Chess Club", events.EventParticipantSignedUp)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dispatcher.Start(ctx)

	require.Empty(t, producer.messages())
	require.InDelta(t, beforeShutdown+1, testutil.ToFloat64(droppedCounter.WithLabelValues("shutdown")), 0.0001)
	require.InDelta(t, beforeExhausted, testutil.ToFloat64(droppedCounter.WithLabelValues("retries_exhausted")), 0.0001)
}

func TestPublishReturnsErrQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	dispatcher := NewDispatcher(&stubProducer{}, cfg)

	require.NoError(t, dispatcher.Publish(context.Background(), newEvent("Chess Club", events.EventParticipantSignedUp)))
	require.ErrorIs(t, dispatcher.Publish(context.Background(), newEvent("Chess Club", events.EventParticipantSignedUp)), ErrQueueFull)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	dispatcher := NewDispatcher(&stubProducer{}, DispatcherConfig{BaseDelay: time.Second})

	require.Equal(t, time.Second, dispatcher.backoffDelay(1))
	require.Equal(t, 4*time.Second, dispatcher.backoffDelay(3))
	require.Equal(t, 30*time.Second, dispatcher.backoffDelay(10))
}

func testConfig() DispatcherConfig {
	return DispatcherConfig{
		Topic:        "activity_membership",
		PollInterval: time.Hour,
		BatchSize:    10,
		QueueSize:    16,
		MaxRetries:   3,
		BaseDelay:    time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newEvent(activity, eventType string) events.MembershipEvent {
	return events.MembershipEvent{
		EventID:          "evt-" + eventType,
		EventType:        eventType,
		Activity:         activity,
		Email:            "test_user@example.com",
		ParticipantCount: 3,
		MaxParticipants:  12,
		OccurredAt:       time.Date(2026, time.October, 18, 15, 30, 0, 0, time.UTC),
	}
}

func headerString(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

type stubProducer struct {
	mu       sync.Mutex
	err      error
	failures int
	attempts int
	writes   []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.failures > 0 {
		s.failures--
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)

	s.writes = append(s.writes, writtenBatch{
		topic:    topic,
		messages: copied,
	})
	return nil
}

func (s *stubProducer) allMessages() []kafka.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []kafka.Message
	for _, w := range s.writes {
		out = append(out, w.messages...)
	}
	return out
}

// blockingProducer holds writes until their context ends. Unless always is
// set, only the first write blocks and later writes succeed.
type blockingProducer struct {
	mu        sync.Mutex
	always    bool
	calls     int
	started   chan struct{}
	delivered []kafka.Message
}

func newBlockingProducer(always bool) *blockingProducer {
	return &blockingProducer{always: always, started: make(chan struct{})}
}

func (p *blockingProducer) WriteMessages(ctx context.Context, _ string, msgs ...kafka.Message) error {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()

	if first {
		close(p.started)
	}
	if first || p.always {
		<-ctx.Done()
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered = append(p.delivered, msgs...)
	return nil
}

func (p *blockingProducer) messages() []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Message(nil), p.delivered...)
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}
