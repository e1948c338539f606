// Package domain defines the activity framework business logic: the lifecycle
// state machine and the service that orchestrates registry, store and clock.
package domain

import (
	"context"
	"time"
)

// State is an activity lifecycle state.
type State string

const (
	StateDraft     State = "draft"
	StatePublished State = "published"
	StateActive    State = "active"
	StateExpired   State = "expired"
)

// Activity is one configured, schedulable unit of interaction within a
// session. The configuration document is opaque to the framework; the type
// identifier resolves its meaning through the registry.
type Activity struct {
	ID          string
	SessionID   string
	Type        string
	Title       string
	Description string
	State       State
	Config      map[string]any
	OrderIndex  int
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Response is one participant's submitted payload for one activity. The
// session id is denormalized onto the record so the polling sync query stays
// one indexed lookup per record kind.
type Response struct {
	ID            string
	SessionID     string
	ActivityID    string
	ParticipantID string
	Payload       map[string]any
	SubmittedAt   time.Time
}

// SessionState is the incremental polling payload: records changed since the
// caller's cursor plus the new cursor watermark.
type SessionState struct {
	Activities []Activity
	Responses  []Response
	Cursor     time.Time
}

// Store captures generic persistence for activities and responses. It has no
// activity-type awareness; config and payload documents pass through
// uninterpreted.
type Store interface {
	CreateActivity(ctx context.Context, activity Activity) error
	// UpdateActivity persists the activity only if its stored state still
	// equals expected, returning ErrStateConflict otherwise. This is the
	// lost-update guard for concurrent transitions.
	UpdateActivity(ctx context.Context, activity Activity, expected State) error
	GetActivity(ctx context.Context, activityID string) (*Activity, error)
	ListBySession(ctx context.Context, sessionID string) ([]Activity, error)
	// ListOverdue returns active activities whose expiry timestamp is at or
	// before now.
	ListOverdue(ctx context.Context, now time.Time) ([]Activity, error)

	InsertResponse(ctx context.Context, response Response) error
	UpdateResponse(ctx context.Context, response Response) error
	FindResponse(ctx context.Context, activityID, participantID string) (*Response, error)
	ListResponses(ctx context.Context, activityID string) ([]Response, error)

	// ChangedSince returns activities and responses in the session touched
	// strictly after since, ordered by timestamp ascending. A zero since
	// means everything.
	ChangedSince(ctx context.Context, sessionID string, since time.Time) ([]Activity, []Response, error)
}
