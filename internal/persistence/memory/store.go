// Package memory provides an in-memory Store used by unit tests and the
// memory store driver for local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/engage/internal/domain"
)

// Store keeps activities and responses in maps guarded by one RWMutex.
// Documents are deep-copied on the way in and out so callers cannot mutate
// stored state behind the store's back.
type Store struct {
	mu         sync.RWMutex
	activities map[string]domain.Activity
	responses  map[string]domain.Response
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		activities: make(map[string]domain.Activity),
		responses:  make(map[string]domain.Response),
	}
}

// CreateActivity inserts a new activity record.
func (s *Store) CreateActivity(_ context.Context, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	activity.Config = cloneDoc(activity.Config)
	s.activities[activity.ID] = activity
	return nil
}

// UpdateActivity replaces the record if the stored state matches expected.
func (s *Store) UpdateActivity(_ context.Context, activity domain.Activity, expected domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.activities[activity.ID]
	if !ok {
		return domain.ErrActivityNotFound
	}
	if current.State != expected {
		return domain.ErrStateConflict
	}
	activity.Config = cloneDoc(activity.Config)
	s.activities[activity.ID] = activity
	return nil
}

// GetActivity returns the activity or nil when absent.
func (s *Store) GetActivity(_ context.Context, activityID string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	activity, ok := s.activities[activityID]
	if !ok {
		return nil, nil
	}
	activity.Config = cloneDoc(activity.Config)
	return &activity, nil
}

// ListBySession returns the session's activities ordered by position.
func (s *Store) ListBySession(_ context.Context, sessionID string) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Activity, 0)
	for _, activity := range s.activities {
		if activity.SessionID != sessionID {
			continue
		}
		activity.Config = cloneDoc(activity.Config)
		out = append(out, activity)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex == out[j].OrderIndex {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out, nil
}

// ListOverdue returns active activities whose expiry is at or before now.
func (s *Store) ListOverdue(_ context.Context, now time.Time) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Activity, 0)
	for _, activity := range s.activities {
		if activity.State != domain.StateActive || activity.ExpiresAt == nil {
			continue
		}
		if !now.Before(*activity.ExpiresAt) {
			activity.Config = cloneDoc(activity.Config)
			out = append(out, activity)
		}
	}
	return out, nil
}

// InsertResponse inserts a new response record.
func (s *Store) InsertResponse(_ context.Context, response domain.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	response.Payload = cloneDoc(response.Payload)
	s.responses[response.ID] = response
	return nil
}

// UpdateResponse replaces an existing response record.
func (s *Store) UpdateResponse(_ context.Context, response domain.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.responses[response.ID]; !ok {
		return domain.ErrActivityNotFound
	}
	response.Payload = cloneDoc(response.Payload)
	s.responses[response.ID] = response
	return nil
}

// FindResponse returns the most recent response for the pair, or nil.
func (s *Store) FindResponse(_ context.Context, activityID, participantID string) (*domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Response
	for _, response := range s.responses {
		if response.ActivityID != activityID || response.ParticipantID != participantID {
			continue
		}
		if found == nil || response.SubmittedAt.After(found.SubmittedAt) {
			r := response
			found = &r
		}
	}
	if found == nil {
		return nil, nil
	}
	found.Payload = cloneDoc(found.Payload)
	return found, nil
}

// ListResponses returns all responses for an activity ordered by submission.
func (s *Store) ListResponses(_ context.Context, activityID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Response, 0)
	for _, response := range s.responses {
		if response.ActivityID != activityID {
			continue
		}
		response.Payload = cloneDoc(response.Payload)
		out = append(out, response)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// ChangedSince returns session records touched strictly after since, ordered
// by timestamp ascending.
func (s *Store) ChangedSince(_ context.Context, sessionID string, since time.Time) ([]domain.Activity, []domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	activities := make([]domain.Activity, 0)
	for _, activity := range s.activities {
		if activity.SessionID != sessionID || !activity.UpdatedAt.After(since) {
			continue
		}
		activity.Config = cloneDoc(activity.Config)
		activities = append(activities, activity)
	}
	sort.Slice(activities, func(i, j int) bool { return activities[i].UpdatedAt.Before(activities[j].UpdatedAt) })

	responses := make([]domain.Response, 0)
	for _, response := range s.responses {
		if response.SessionID != sessionID || !response.SubmittedAt.After(since) {
			continue
		}
		response.Payload = cloneDoc(response.Payload)
		responses = append(responses, response)
	}
	sort.Slice(responses, func(i, j int) bool { return responses[i].SubmittedAt.Before(responses[j].SubmittedAt) })

	return activities, responses, nil
}

func cloneDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneDoc(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
