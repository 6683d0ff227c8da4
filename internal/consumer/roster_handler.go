package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"example.com/clubsignup/internal/events"
	"example.com/clubsignup/internal/logging"
)

const defaultDedupeWindow = 4096

// RosterHandler keeps an audit view of roster sizes built from membership events.
// Redelivered events (same event_id) are applied once.
type RosterHandler struct {
	mu     sync.Mutex
	sizes  map[string]int
	seen   map[string]struct{}
	order  []string
	window int
	logger *slog.Logger
}

// NewRosterHandler constructs a RosterHandler.
func NewRosterHandler(logger *slog.Logger) *RosterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RosterHandler{
		sizes:  make(map[string]int),
		seen:   make(map[string]struct{}),
		window: defaultDedupeWindow,
		logger: logger,
	}
}

// Handle applies a membership event to the roster view.
func (h *RosterHandler) Handle(ctx context.Context, msg Message) error {
	event := msg.Event
	if event.Activity == "" {
		return errors.New("membership event without activity")
	}
	if !events.Known(msg.EventType) {
		return fmt.Errorf("unknown event type %q", msg.EventType)
	}

	h.mu.Lock()
	if event.EventID != "" {
		if _, dup := h.seen[event.EventID]; dup {
			h.mu.Unlock()
			return nil
		}
		h.remember(event.EventID)
	}
	h.sizes[event.Activity] = event.ParticipantCount
	h.mu.Unlock()

	rosterGauge.WithLabelValues(event.Activity).Set(float64(event.ParticipantCount))
	rosterChangesCounter.WithLabelValues(event.Activity, msg.EventType).Inc()

	h.logger.Info("roster changed",
		"event_type", msg.EventType,
		"activity", event.Activity,
		"email", logging.RedactEmail(event.Email),
		"participants", event.ParticipantCount,
		"max_participants", event.MaxParticipants,
		"offset", msg.Offset,
	)
	return nil
}

// Sizes returns the last reported participant count per activity.
func (h *RosterHandler) Sizes() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int, len(h.sizes))
	for k, v := range h.sizes {
		out[k] = v
	}
	return out
}

func (h *RosterHandler) remember(id string) {
	h.seen[id] = struct{}{}
	h.order = append(h.order, id)
	if len(h.order) > h.window {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.seen, oldest)
	}
}
