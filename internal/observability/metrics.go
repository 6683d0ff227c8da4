// Package observability holds the Prometheus collectors for roster operations.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for signup and unregister counters.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeDuplicate = "duplicate"
	OutcomeFull      = "full"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

var (
	signupCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_signup",
		Subsystem: "registry",
		Name:      "signups_total",
		Help:      "Signup attempts grouped by outcome.",
	}, []string{"outcome"})

	unregisterCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_signup",
		Subsystem: "registry",
		Name:      "unregisters_total",
		Help:      "Unregister attempts grouped by outcome.",
	}, []string{"outcome"})

	participantsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity_signup",
		Subsystem: "registry",
		Name:      "participants",
		Help:      "Current number of participants per activity.",
	}, []string{"activity"})

	publishFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_signup",
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Membership events the service could not hand to the publisher.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(signupCounter, unregisterCounter, participantsGauge, publishFailureCounter)
}

// RecordSignup counts a signup attempt.
func RecordSignup(outcome string) {
	signupCounter.WithLabelValues(outcome).Inc()
}

// RecordUnregister counts an unregister attempt.
func RecordUnregister(outcome string) {
	unregisterCounter.WithLabelValues(outcome).Inc()
}

// SetParticipants updates the roster size gauge for an activity.
func SetParticipants(activity string, count int) {
	participantsGauge.WithLabelValues(activity).Set(float64(count))
}

// RecordPublishFailure counts an event rejected by the publisher.
func RecordPublishFailure(eventType string) {
	publishFailureCounter.WithLabelValues(eventType).Inc()
}
