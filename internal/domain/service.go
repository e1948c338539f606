package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"example.com/engage/internal/activitytype"
	"example.com/engage/internal/observability"
)

// Service orchestrates activity workflows. It is the only component that
// causes observable side effects; every Activity or Response mutation passes
// through here.
type Service struct {
	registry *activitytype.Registry
	store    Store
	locks    *activityLocks
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(registry *activitytype.Registry, store Store) *Service {
	return &Service{
		registry: registry,
		store:    store,
		locks:    newActivityLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateActivityInput captures the payload from the API layer.
type CreateActivityInput struct {
	SessionID   string
	Type        string
	Title       string
	Description string
	Config      map[string]any
	OrderIndex  int
}

// CreateActivity validates the configuration against the type's schema and
// persists a new draft activity.
func (s *Service) CreateActivity(ctx context.Context, input CreateActivityInput) (*Activity, error) {
	if _, err := s.registry.Get(input.Type); err != nil {
		return nil, err
	}
	if input.Config == nil {
		input.Config = map[string]any{}
	}
	if err := s.registry.ValidateConfig(input.Type, input.Config); err != nil {
		return nil, err
	}

	now := s.now()
	activity := Activity{
		ID:          uuid.NewString(),
		SessionID:   input.SessionID,
		Type:        input.Type,
		Title:       input.Title,
		Description: input.Description,
		State:       StateDraft,
		Config:      input.Config,
		OrderIndex:  input.OrderIndex,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateActivity(ctx, activity); err != nil {
		return nil, err
	}
	observability.RecordActivityCreated(input.Type)
	return &activity, nil
}

// GetActivity fetches by id.
func (s *Service) GetActivity(ctx context.Context, activityID string) (*Activity, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListSessionActivities returns the session's activities ordered by position.
func (s *Service) ListSessionActivities(ctx context.Context, sessionID string) ([]Activity, error) {
	return s.store.ListBySession(ctx, sessionID)
}

// UpdateConfiguration replaces an activity's configuration. The policy that
// configuration is mutable only in draft or published lives here, not in
// callers.
func (s *Service) UpdateConfiguration(ctx context.Context, activityID string, config map[string]any) (*Activity, error) {
	unlock := s.locks.lock(activityID)
	defer unlock()

	activity, err := s.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.State != StateDraft && activity.State != StatePublished {
		return nil, ErrConfigLocked
	}
	if config == nil {
		config = map[string]any{}
	}
	if err := s.registry.ValidateConfig(activity.Type, config); err != nil {
		return nil, err
	}

	activity.Config = config
	activity.UpdatedAt = s.now()
	if err := s.store.UpdateActivity(ctx, *activity, activity.State); err != nil {
		return nil, err
	}
	return activity, nil
}

// TransitionState moves an activity through the lifecycle. Legality is decided
// by the state machine plus the type's optional guard; the store's conditional
// update makes concurrent transitions safe.
func (s *Service) TransitionState(ctx context.Context, activityID string, target State, reason string) (*Activity, error) {
	unlock := s.locks.lock(activityID)
	defer unlock()

	activity, err := s.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	def, err := s.registry.Get(activity.Type)
	if err != nil {
		return nil, err
	}
	if def.Guard != nil && CanTransition(activity.State, target) {
		if !def.Guard(string(activity.State), string(target)) {
			return nil, &IllegalTransitionError{From: activity.State, To: target}
		}
	}

	previous := activity.State
	if err := Transition(activity, target, s.now()); err != nil {
		return nil, err
	}

	if err := s.store.UpdateActivity(ctx, *activity, previous); err != nil {
		if errors.Is(err, ErrStateConflict) {
			// Another caller won the race. Report against the state they left
			// behind so the UI can refresh accurately.
			current, loadErr := s.GetActivity(ctx, activityID)
			if loadErr == nil {
				return nil, &IllegalTransitionError{From: current.State, To: target}
			}
		}
		return nil, err
	}

	if reason != "" {
		log.Printf("activity %s transitioned %s -> %s (%s)", activity.ID, previous, target, reason)
	} else {
		log.Printf("activity %s transitioned %s -> %s", activity.ID, previous, target)
	}
	observability.RecordTransition(string(target))
	return activity, nil
}

// SubmitResponse validates and persists one participant submission. Writes for
// the same activity are serialized so the revote lookup and write cannot
// interleave.
func (s *Service) SubmitResponse(ctx context.Context, activityID, participantID string, payload map[string]any) (*Response, error) {
	unlock := s.locks.lock(activityID)
	defer unlock()

	activity, err := s.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.State != StateActive {
		observability.RecordResponseRejected("not_active")
		return nil, ErrActivityNotActive
	}
	now := s.now()
	// Wall-clock check, not stored state: a dormant sweep must not open a
	// window where late responses slip in.
	if activity.ExpiresAt != nil && !now.Before(*activity.ExpiresAt) {
		observability.RecordResponseRejected("expired")
		return nil, ErrActivityExpired
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if err := s.registry.ValidateResponse(activity.Type, payload); err != nil {
		observability.RecordResponseRejected("invalid_payload")
		return nil, err
	}

	def, err := s.registry.Get(activity.Type)
	if err != nil {
		return nil, err
	}

	response := Response{
		ID:            uuid.NewString(),
		SessionID:     activity.SessionID,
		ActivityID:    activity.ID,
		ParticipantID: participantID,
		Payload:       payload,
		SubmittedAt:   now,
	}

	if def.Capabilities.AllowMultiple {
		if err := s.store.InsertResponse(ctx, response); err != nil {
			return nil, err
		}
		observability.RecordResponseAccepted(activity.Type)
		return &response, nil
	}

	existing, err := s.store.FindResponse(ctx, activity.ID, participantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !def.Capabilities.AllowRevote {
			observability.RecordResponseRejected("duplicate")
			return nil, ErrAlreadyResponded
		}
		existing.Payload = payload
		existing.SubmittedAt = now
		if err := s.store.UpdateResponse(ctx, *existing); err != nil {
			return nil, err
		}
		observability.RecordResponseAccepted(activity.Type)
		return existing, nil
	}

	if err := s.store.InsertResponse(ctx, response); err != nil {
		return nil, err
	}
	observability.RecordResponseAccepted(activity.Type)
	return &response, nil
}

// AggregateResult bundles the aggregated document with response summary stats.
type AggregateResult struct {
	ActivityID         string
	Type               string
	Results            map[string]any
	TotalResponses     int
	UniqueParticipants int
	LastResponseAt     *time.Time
}

// AggregatedResults loads all responses and invokes the type's aggregation
// function. No caching; viewers re-request on their poll interval.
func (s *Service) AggregatedResults(ctx context.Context, activityID string) (*AggregateResult, error) {
	activity, err := s.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	def, err := s.registry.Get(activity.Type)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, activityID)
	if err != nil {
		return nil, err
	}

	input := make([]activitytype.Response, 0, len(responses))
	participants := make(map[string]struct{})
	var last *time.Time
	for _, response := range responses {
		input = append(input, activitytype.Response{
			ParticipantID: response.ParticipantID,
			Payload:       response.Payload,
			SubmittedAt:   response.SubmittedAt,
		})
		participants[response.ParticipantID] = struct{}{}
		if last == nil || response.SubmittedAt.After(*last) {
			ts := response.SubmittedAt
			last = &ts
		}
	}

	results, err := def.Aggregate(activity.Config, input)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s responses: %w", activity.Type, err)
	}

	return &AggregateResult{
		ActivityID:         activity.ID,
		Type:               activity.Type,
		Results:            results,
		TotalResponses:     len(responses),
		UniqueParticipants: len(participants),
		LastResponseAt:     last,
	}, nil
}

// SessionState returns records changed strictly after since, plus the new
// cursor watermark. A zero since means full state. When nothing changed the
// incoming cursor is echoed so repeated polls stay idempotent.
func (s *Service) SessionState(ctx context.Context, sessionID string, since time.Time) (*SessionState, error) {
	activities, responses, err := s.store.ChangedSince(ctx, sessionID, since)
	if err != nil {
		return nil, err
	}

	cursor := since
	for _, activity := range activities {
		if activity.UpdatedAt.After(cursor) {
			cursor = activity.UpdatedAt
		}
	}
	for _, response := range responses {
		if response.SubmittedAt.After(cursor) {
			cursor = response.SubmittedAt
		}
	}

	observability.RecordSyncPoll(len(activities) + len(responses))
	return &SessionState{Activities: activities, Responses: responses, Cursor: cursor}, nil
}

// ExpireOverdue transitions every active activity whose expiry passed. It runs
// through TransitionState so sweep and admin paths share one set of rules.
func (s *Service) ExpireOverdue(ctx context.Context) ([]Activity, error) {
	overdue, err := s.store.ListOverdue(ctx, s.now())
	if err != nil {
		return nil, err
	}

	expired := make([]Activity, 0, len(overdue))
	for _, candidate := range overdue {
		activity, err := s.TransitionState(ctx, candidate.ID, StateExpired, "automatic expiration")
		if err != nil {
			var illegal *IllegalTransitionError
			if errors.As(err, &illegal) {
				continue // already swept or closed by an admin
			}
			return expired, err
		}
		expired = append(expired, *activity)
	}
	return expired, nil
}
