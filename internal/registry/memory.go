// Package registry holds the process-wide activity rosters in memory.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"example.com/clubsignup/internal/domain"
)

// Option configures optional behaviour for the Registry.
type Option func(*Registry)

// WithCapacityEnforcement rejects signups once an activity reaches MaxParticipants.
func WithCapacityEnforcement(enabled bool) Option {
	return func(r *Registry) {
		r.enforceCapacity = enabled
	}
}

// Registry stores activities in memory. Every mutation holds the write lock
// for the whole check-then-mutate sequence.
type Registry struct {
	mu              sync.RWMutex
	activities      map[string]*domain.Activity
	enforceCapacity bool
}

// New builds a Registry from the seed list.
func New(seed []domain.Activity, opts ...Option) (*Registry, error) {
	if err := ValidateSeed(seed); err != nil {
		return nil, err
	}

	r := &Registry{activities: make(map[string]*domain.Activity, len(seed))}
	for _, opt := range opts {
		opt(r)
	}
	for _, activity := range seed {
		stored := activity.Clone()
		r.activities[stored.Name] = &stored
	}
	return r, nil
}

// ValidateSeed checks names are unique and non-empty, capacities are
// non-negative and no activity lists the same participant twice.
func ValidateSeed(seed []domain.Activity) error {
	names := make(map[string]struct{}, len(seed))
	for i, activity := range seed {
		if strings.TrimSpace(activity.Name) == "" {
			return fmt.Errorf("seed activity %d: name is required", i)
		}
		if _, dup := names[activity.Name]; dup {
			return fmt.Errorf("seed activity %q: duplicate name", activity.Name)
		}
		names[activity.Name] = struct{}{}

		if activity.MaxParticipants < 0 {
			return fmt.Errorf("seed activity %q: max_participants must be >= 0", activity.Name)
		}

		seen := make(map[string]struct{}, len(activity.Participants))
		for _, email := range activity.Participants {
			if _, dup := seen[email]; dup {
				return fmt.Errorf("seed activity %q: duplicate participant %q", activity.Name, email)
			}
			seen[email] = struct{}{}
		}
	}
	return nil
}

// List implements domain.ActivityRegistry.
func (r *Registry) List() map[string]domain.Activity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.Activity, len(r.activities))
	for name, activity := range r.activities {
		out[name] = activity.Clone()
	}
	return out
}

// Signup implements domain.ActivityRegistry.
func (r *Registry) Signup(name, email string) (domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[name]
	if !ok {
		return domain.Activity{}, domain.ErrActivityNotFound
	}
	if activity.HasParticipant(email) {
		return domain.Activity{}, domain.ErrAlreadySignedUp
	}
	if r.enforceCapacity && len(activity.Participants) >= activity.MaxParticipants {
		return domain.Activity{}, domain.ErrActivityFull
	}

	activity.Participants = append(activity.Participants, email)
	return activity.Clone(), nil
}

// Unregister implements domain.ActivityRegistry.
func (r *Registry) Unregister(name, email string) (domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[name]
	if !ok {
		return domain.Activity{}, domain.ErrActivityNotFound
	}

	idx := -1
	for i, p := range activity.Participants {
		if p == email {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Activity{}, domain.ErrParticipantNotFound
	}

	activity.Participants = append(activity.Participants[:idx], activity.Participants[idx+1:]...)
	return activity.Clone(), nil
}
