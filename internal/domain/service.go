// Package domain defines the business logic for the activity signup service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/clubsignup/internal/events"
	"example.com/clubsignup/internal/logging"
	"example.com/clubsignup/internal/observability"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrParticipantNotFound is returned when unregistering an email that is not on the roster.
	ErrParticipantNotFound = errors.New("participant not found in this activity")
	// ErrAlreadySignedUp is returned for a duplicate signup.
	ErrAlreadySignedUp = errors.New("student is already signed up for this activity")
	// ErrActivityFull is returned when capacity enforcement is on and the roster is full.
	ErrActivityFull = errors.New("activity is full")
	// ErrInvalidEmail indicates a missing or malformed participant email.
	ErrInvalidEmail = errors.New("invalid email")
)

// ActivityRegistry captures the roster operations. Implementations must make
// each Signup and Unregister an atomic check-then-mutate.
type ActivityRegistry interface {
	List() map[string]Activity
	Signup(name, email string) (Activity, error)
	Unregister(name, email string) (Activity, error)
}

// EventPublisher delivers membership changes to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event events.MembershipEvent) error
}

// Service orchestrates signup workflows.
type Service struct {
	registry  ActivityRegistry
	publisher EventPublisher
	now       func() time.Time
}

// NewService constructs a Service and publishes the seeded roster sizes. A nil
// publisher disables event delivery.
func NewService(registry ActivityRegistry, publisher EventPublisher) *Service {
	for name, activity := range registry.List() {
		observability.SetParticipants(name, len(activity.Participants))
	}
	return &Service{
		registry:  registry,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SignupResult is the confirmation returned by a successful mutation.
type SignupResult struct {
	Message  string
	Activity Activity
}

// ListActivities returns a snapshot of every activity keyed by name.
func (s *Service) ListActivities(ctx context.Context) map[string]Activity {
	return s.registry.List()
}

// Signup adds email to the named activity.
func (s *Service) Signup(ctx context.Context, activityName, email string) (*SignupResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		observability.RecordSignup(observability.OutcomeInvalid)
		return nil, err
	}

	activity, err := s.registry.Signup(activityName, email)
	if err != nil {
		observability.RecordSignup(outcomeFor(err))
		return nil, fmt.Errorf("signup %q: %w", activityName, err)
	}
	observability.RecordSignup(observability.OutcomeOK)
	observability.SetParticipants(activity.Name, len(activity.Participants))

	logging.FromContext(ctx).Info("participant signed up",
		"activity", activity.Name,
		"email", logging.RedactEmail(email),
		"participants", len(activity.Participants),
	)
	s.publish(ctx, events.EventParticipantSignedUp, activity, email)

	return &SignupResult{
		Message:  fmt.Sprintf("Signed up %s for %s", email, activity.Name),
		Activity: activity,
	}, nil
}

// Unregister removes email from the named activity.
func (s *Service) Unregister(ctx context.Context, activityName, email string) (*SignupResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		observability.RecordUnregister(observability.OutcomeInvalid)
		return nil, err
	}

	activity, err := s.registry.Unregister(activityName, email)
	if err != nil {
		observability.RecordUnregister(outcomeFor(err))
		return nil, fmt.Errorf("unregister %q: %w", activityName, err)
	}
	observability.RecordUnregister(observability.OutcomeOK)
	observability.SetParticipants(activity.Name, len(activity.Participants))

	logging.FromContext(ctx).Info("participant removed",
		"activity", activity.Name,
		"email", logging.RedactEmail(email),
		"participants", len(activity.Participants),
	)
	s.publish(ctx, events.EventParticipantRemoved, activity, email)

	return &SignupResult{
		Message:  fmt.Sprintf("Removed %s from %s", email, activity.Name),
		Activity: activity,
	}, nil
}

// publish is best effort: the roster change has already been applied.
func (s *Service) publish(ctx context.Context, eventType string, activity Activity, email string) {
	if s.publisher == nil {
		return
	}
	event := events.MembershipEvent{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		Activity:         activity.Name,
		Email:            email,
		ParticipantCount: len(activity.Participants),
		MaxParticipants:  activity.MaxParticipants,
		OccurredAt:       s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		observability.RecordPublishFailure(eventType)
		logging.FromContext(ctx).Warn("membership event not published",
			"event_type", eventType,
			"activity", activity.Name,
			"error", err,
		)
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidEmail)
	}
	local, host, ok := strings.Cut(email, "@")
	if !ok || local == "" || host == "" || strings.Contains(host, "@") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrActivityNotFound), errors.Is(err, ErrParticipantNotFound):
		return observability.OutcomeNotFound
	case errors.Is(err, ErrAlreadySignedUp):
		return observability.OutcomeDuplicate
	case errors.Is(err, ErrActivityFull):
		return observability.OutcomeFull
	default:
		return observability.OutcomeError
	}
}
