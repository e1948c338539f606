package api

import (
	"errors"
	"strings"
	"time"

	"example.com/engage/internal/activitytype"
	"example.com/engage/internal/domain"
	"example.com/engage/internal/persistence"
)

// CreateActivityRequest is the POST /v1/activities payload.
type CreateActivityRequest struct {
	SessionID   string         `json:"session_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config"`
	OrderIndex  int            `json:"order_index"`
}

// Validate checks required fields before touching the service layer.
func (r CreateActivityRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session_id is required")
	}
	if strings.TrimSpace(r.Type) == "" {
		return errors.New("type is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	return nil
}

// UpdateConfigurationRequest is the PATCH /v1/activities/{id} payload.
type UpdateConfigurationRequest struct {
	Config map[string]any `json:"config"`
}

// TransitionRequest is the POST /v1/activities/{id}/transition payload.
type TransitionRequest struct {
	TargetState string `json:"target_state"`
	Reason      string `json:"reason,omitempty"`
}

// SubmitResponseRequest is the POST /v1/activities/{id}/responses payload.
type SubmitResponseRequest struct {
	Payload map[string]any `json:"payload"`
}

// ActivityView is the wire shape for an activity.
type ActivityView struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	State       string         `json:"state"`
	Config      map[string]any `json:"config"`
	OrderIndex  int            `json:"order_index"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ResponseView is the wire shape for a participant response.
type ResponseView struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"session_id"`
	ActivityID    string         `json:"activity_id"`
	ParticipantID string         `json:"participant_id"`
	Payload       map[string]any `json:"payload"`
	SubmittedAt   time.Time      `json:"submitted_at"`
}

// ResultsView is the GET /v1/activities/{id}/results body.
type ResultsView struct {
	ActivityID         string         `json:"activity_id"`
	Type               string         `json:"type"`
	Results            map[string]any `json:"results"`
	TotalResponses     int            `json:"total_responses"`
	UniqueParticipants int            `json:"unique_participants"`
	LastResponseAt     *time.Time     `json:"last_response_at,omitempty"`
}

// SessionStateView is the GET /v1/sessions/{id}/state body.
type SessionStateView struct {
	Activities []ActivityView `json:"activities"`
	Responses  []ResponseView `json:"responses"`
	Cursor     string         `json:"cursor"`
}

// SessionActivitiesResponse wraps the ordered activity list for a session.
type SessionActivitiesResponse struct {
	Items []ActivityView `json:"items"`
}

// ActivityTypesResponse wraps the registered type catalog.
type ActivityTypesResponse struct {
	Types []activitytype.Info `json:"types"`
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ID:          activity.ID,
		SessionID:   activity.SessionID,
		Type:        activity.Type,
		Title:       activity.Title,
		Description: activity.Description,
		State:       string(activity.State),
		Config:      activity.Config,
		OrderIndex:  activity.OrderIndex,
		ExpiresAt:   activity.ExpiresAt,
		CreatedAt:   activity.CreatedAt,
		UpdatedAt:   activity.UpdatedAt,
	}
}

func toResponseView(response domain.Response) ResponseView {
	return ResponseView{
		ID:            response.ID,
		SessionID:     response.SessionID,
		ActivityID:    response.ActivityID,
		ParticipantID: response.ParticipantID,
		Payload:       response.Payload,
		SubmittedAt:   response.SubmittedAt,
	}
}

func toResultsView(result *domain.AggregateResult) ResultsView {
	return ResultsView{
		ActivityID:         result.ActivityID,
		Type:               result.Type,
		Results:            result.Results,
		TotalResponses:     result.TotalResponses,
		UniqueParticipants: result.UniqueParticipants,
		LastResponseAt:     result.LastResponseAt,
	}
}

func toSessionStateView(state *domain.SessionState) SessionStateView {
	view := SessionStateView{
		Activities: make([]ActivityView, 0, len(state.Activities)),
		Responses:  make([]ResponseView, 0, len(state.Responses)),
		Cursor:     persistence.EncodeCursor(state.Cursor),
	}
	for _, activity := range state.Activities {
		view.Activities = append(view.Activities, toActivityView(activity))
	}
	for _, response := range state.Responses {
		view.Responses = append(view.Responses, toResponseView(response))
	}
	return view
}
