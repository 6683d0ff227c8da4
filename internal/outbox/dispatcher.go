// Package outbox buffers membership events in process and delivers them to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/clubsignup/internal/events"
)

// ErrQueueFull is returned by Publish when the dispatcher cannot accept more events.
var ErrQueueFull = errors.New("outbox queue full")

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// DispatcherConfig contains tunables for the Dispatcher.
type DispatcherConfig struct {
	Topic        string
	PollInterval time.Duration
	BatchSize    int
	QueueSize    int
	MaxRetries   int
	BaseDelay    time.Duration
	FlushTimeout time.Duration
	Logger       *slog.Logger
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Topic == "" {
		c.Topic = "activity_membership"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Dispatcher drains queued membership events and publishes them in batches.
type Dispatcher struct {
	producer         messageWriter
	cfg              DispatcherConfig
	queue            chan events.MembershipEvent
	shutdownComplete chan struct{}

	// pending holds a batch whose delivery was interrupted by cancellation.
	// Only the Start goroutine touches it.
	pending []events.MembershipEvent
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(producer messageWriter, cfg DispatcherConfig) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		producer:         producer,
		cfg:              cfg,
		queue:            make(chan events.MembershipEvent, cfg.QueueSize),
		shutdownComplete: make(chan struct{}),
	}
}

// Publish enqueues the event without blocking.
func (d *Dispatcher) Publish(_ context.Context, event events.MembershipEvent) error {
	select {
	case d.queue <- event:
		queueDepthGauge.Set(float64(len(d.queue)))
		return nil
	default:
		droppedCounter.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

// Start launches the polling loop. It should be called in a goroutine. When
// ctx is cancelled the queue is flushed before Wait returns.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		select {
		case <-ctx.Done():
			d.flush()
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.FlushTimeout)
	defer cancel()
	d.drain(ctx)

	if lost := len(d.pending) + len(d.queue); lost > 0 {
		failedCounter.Add(float64(lost))
		droppedCounter.WithLabelValues("shutdown").Add(float64(lost))
		d.cfg.Logger.Error("outbox: events undelivered at shutdown", "count", lost)
	}
}

// drain processes full batches until the queue is empty.
func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		batch := d.nextBatch()
		if len(batch) == 0 {
			return
		}
		if err := d.processBatch(ctx, batch); err != nil && ctx.Err() == nil {
			d.cfg.Logger.Error("outbox dispatcher error", "error", err)
		}
		if len(batch) < d.cfg.BatchSize || ctx.Err() != nil {
			return
		}
	}
}

func (d *Dispatcher) nextBatch() []events.MembershipEvent {
	batch := make([]events.MembershipEvent, 0, d.cfg.BatchSize)
	if len(d.pending) > 0 {
		n := min(len(d.pending), d.cfg.BatchSize)
		batch = append(batch, d.pending[:n]...)
		d.pending = d.pending[n:]
	}
	for len(batch) < d.cfg.BatchSize {
		select {
		case event := <-d.queue:
			batch = append(batch, event)
		default:
			queueDepthGauge.Set(float64(len(d.queue)))
			return batch
		}
	}
	queueDepthGauge.Set(float64(len(d.queue)))
	return batch
}

func (d *Dispatcher) processBatch(ctx context.Context, batch []events.MembershipEvent) error {
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	messages := make([]kafka.Message, 0, len(batch))
	encoded := make([]events.MembershipEvent, 0, len(batch))
	for _, event := range batch {
		msg, err := encodeMessage(event)
		if err != nil {
			droppedCounter.WithLabelValues("encode").Inc()
			d.cfg.Logger.Error("outbox: encode failure", "event_id", event.EventID, "error", err)
			continue
		}
		messages = append(messages, msg)
		encoded = append(encoded, event)
	}
	if len(messages) == 0 {
		return nil
	}

	if err := d.deliver(ctx, messages); err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-delivery; the next drain retries the batch.
			d.pending = append(encoded, d.pending...)
			return fmt.Errorf("deliver %d events to %s: %w", len(messages), d.cfg.Topic, ctx.Err())
		}
		failedCounter.Add(float64(len(messages)))
		droppedCounter.WithLabelValues("retries_exhausted").Add(float64(len(messages)))
		return fmt.Errorf("deliver %d events to %s: %w", len(messages), d.cfg.Topic, err)
	}

	deliveredCounter.Add(float64(len(messages)))
	return nil
}

// deliver writes the batch, retrying with exponential backoff.
func (d *Dispatcher) deliver(ctx context.Context, messages []kafka.Message) error {
	var err error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			retryCounter.Inc()
			timer := time.NewTimer(d.backoffDelay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(err, ctx.Err())
			case <-timer.C:
			}
		}

		if err = d.producer.WriteMessages(ctx, d.cfg.Topic, messages...); err == nil {
			return nil
		}
		d.cfg.Logger.Warn("outbox: delivery attempt failed", "attempt", attempt+1, "topic", d.cfg.Topic, "error", err)
	}
	return err
}

// backoffDelay calculates exponential backoff capped at thirty seconds.
func (d *Dispatcher) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * d.cfg.BaseDelay
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

func encodeMessage(event events.MembershipEvent) (kafka.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.Activity),
		Value: body,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(event.EventType)},
			{Key: events.HeaderEventID, Value: []byte(event.EventID)},
		},
	}, nil
}

// NoopPublisher discards events. It is used when no brokers are configured.
type NoopPublisher struct{}

// Publish implements domain.EventPublisher.
func (NoopPublisher) Publish(context.Context, events.MembershipEvent) error { return nil }
