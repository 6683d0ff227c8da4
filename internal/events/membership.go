// Package events defines the membership event payloads shared by the API and the roster consumer.
package events

import "time"

// Event types emitted on the membership topic.
const (
	EventParticipantSignedUp = "activity.participant_signed_up"
	EventParticipantRemoved  = "activity.participant_removed"
)

// Kafka header keys attached to every membership message.
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

// MembershipEvent is emitted after a roster change has been applied.
type MembershipEvent struct {
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	Activity         string    `json:"activity"`
	Email            string    `json:"email"`
	ParticipantCount int       `json:"participant_count"`
	MaxParticipants  int       `json:"max_participants"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Known reports whether eventType is one of the membership event types.
func Known(eventType string) bool {
	return eventType == EventParticipantSignedUp || eventType == EventParticipantRemoved
}
