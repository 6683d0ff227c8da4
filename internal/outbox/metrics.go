package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_signup",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of membership events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_signup",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of membership events that failed to publish after all retries.",
	})

	retryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_signup",
		Subsystem: "outbox",
		Name:      "delivery_retries_total",
		Help:      "Number of batch delivery retries.",
	})

	droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_signup",
		Subsystem: "outbox",
		Name:      "events_dropped_total",
		Help:      "Number of membership events dropped, labeled by reason.",
	}, []string{"reason"})

	queueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_signup",
		Subsystem: "outbox",
		Name:      "queue_depth",
		Help:      "Events waiting in the in-process outbox queue.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "activity_signup",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent encoding and delivering outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, retryCounter, droppedCounter, queueDepthGauge, batchDuration)
}
