package consumer

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/clubsignup/internal/events"
)

func TestRosterHandlerTracksSizes(t *testing.T) {
	handler := NewRosterHandler(discardLogger())
	ctx := context.Background()

	require.NoError(t, handler.Handle(ctx, rosterMessage("evt-1", events.EventParticipantSignedUp, "Chess Club", 3)))
	require.NoError(t, handler.Handle(ctx, rosterMessage("evt-2", events.EventParticipantRemoved, "Chess Club", 2)))
	require.NoError(t, handler.Handle(ctx, rosterMessage("evt-3", events.EventParticipantSignedUp, "Tennis Club", 1)))

	require.Equal(t, map[string]int{"Chess Club": 2, "Tennis Club": 1}, handler.Sizes())
	require.InDelta(t, 2, testutil.ToFloat64(rosterGauge.WithLabelValues("Chess Club")), 0.0001)
}

func TestRosterHandlerIgnoresRedelivery(t *testing.T) {
	handler := NewRosterHandler(discardLogger())
	ctx := context.Background()

	before := testutil.ToFloat64(rosterChangesCounter.WithLabelValues("Math Club", events.EventParticipantSignedUp))

	msg := rosterMessage("evt-dup", events.EventParticipantSignedUp, "Math Club", 4)
	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	after := testutil.ToFloat64(rosterChangesCounter.WithLabelValues("Math Club", events.EventParticipantSignedUp))
	require.InDelta(t, before+1, after, 0.0001)
}

func TestRosterHandlerDedupeWindowIsBounded(t *testing.T) {
	handler := NewRosterHandler(discardLogger())
	handler.window = 2
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, handler.Handle(ctx, rosterMessage(id, events.EventParticipantSignedUp, "Art Club", 1)))
	}
	require.Len(t, handler.seen, 2)
	require.NotContains(t, handler.seen, "a")
}

func TestRosterHandlerRejectsInvalidEvents(t *testing.T) {
	handler := NewRosterHandler(discardLogger())
	ctx := context.Background()

	require.Error(t, handler.Handle(ctx, rosterMessage("evt-x", events.EventParticipantSignedUp, "", 1)))
	require.Error(t, handler.Handle(ctx, rosterMessage("evt-y", "activity.renamed", "Chess Club", 1)))
	require.Empty(t, handler.Sizes())
}

func rosterMessage(id, eventType, activity string, count int) Message {
	return Message{
		Topic:     "activity_membership",
		EventType: eventType,
		Event: events.MembershipEvent{
			EventID:          id,
			EventType:        eventType,
			Activity:         activity,
			Email:            "student@example.com",
			ParticipantCount: count,
			MaxParticipants:  12,
		},
	}
}
