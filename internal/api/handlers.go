// Package api exposes HTTP handlers for the activity framework.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"example.com/engage/internal/activitytype"
	"example.com/engage/internal/auth"
	"example.com/engage/internal/domain"
	"example.com/engage/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	registry *activitytype.Registry
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, registry *activitytype.Registry) *Handler {
	return &Handler{service: service, registry: registry}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/activity-types", h.listActivityTypes)
	mux.HandleFunc("POST /v1/activities", h.createActivity)
	mux.HandleFunc("GET /v1/activities/{id}", h.getActivity)
	mux.HandleFunc("PATCH /v1/activities/{id}", h.updateConfiguration)
	mux.HandleFunc("POST /v1/activities/{id}/transition", h.transitionState)
	mux.HandleFunc("POST /v1/activities/{id}/responses", h.submitResponse)
	mux.HandleFunc("GET /v1/activities/{id}/results", h.getResults)
	mux.HandleFunc("GET /v1/sessions/{id}/activities", h.listSessionActivities)
	mux.HandleFunc("GET /v1/sessions/{id}/state", h.getSessionState)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) listActivityTypes(w http.ResponseWriter, r *http.Request) {
	if !h.requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite) {
		return
	}
	types := make([]activitytype.Info, 0)
	for info := range h.registry.List() {
		types = append(types, info)
	}
	writeJSON(w, http.StatusOK, ActivityTypesResponse{Types: types})
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	if !h.requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activity, err := h.service.CreateActivity(r.Context(), domain.CreateActivityInput{
		SessionID:   req.SessionID,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Config:      req.Config,
		OrderIndex:  req.OrderIndex,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	if !h.requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite) {
		return
	}
	activity, err := h.service.GetActivity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) updateConfiguration(w http.ResponseWriter, r *http.Request) {
	if !h.requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}

	var req UpdateConfigurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.Config == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "config is required")
		return
	}

	activity, err := h.service.UpdateConfiguration(r.Context(), r.PathValue("id"), req.Config)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) transitionState(w http.ResponseWriter, r *http.Request) {
	if !h.requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.TargetState) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "target_state is required")
		return
	}

	activity, err := h.service.TransitionState(r.Context(), r.PathValue("id"), domain.State(req.TargetState), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) submitResponse(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeResponsesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope responses:write required")
		return
	}

	var req SubmitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.Payload == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "payload is required")
		return
	}

	// The participant identity comes from the token, never the body.
	response, err := h.service.SubmitResponse(r.Context(), r.PathValue("id"), claims.Subject, req.Payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponseView(*response))
}

func (h *Handler) getResults(w http.ResponseWriter, r *http.Request) {
	if !h.requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite) {
		return
	}
	result, err := h.service.AggregatedResults(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultsView(result))
}

func (h *Handler) listSessionActivities(w http.ResponseWriter, r *http.Request) {
	if !h.requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite) {
		return
	}
	activities, err := h.service.ListSessionActivities(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, SessionActivitiesResponse{Items: items})
}

func (h *Handler) getSessionState(w http.ResponseWriter, r *http.Request) {
	// Every persona polls this endpoint, so any authenticated caller passes.
	if !h.requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite, auth.ScopeResponsesWrite) {
		return
	}

	since, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	state, err := h.service.SessionState(r.Context(), r.PathValue("id"), since)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionStateView(state))
}

func (h *Handler) requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+strings.Join(scopes, " or ")+" required")
	return false
}

func writeDomainError(w http.ResponseWriter, err error) {
	var illegal *domain.IllegalTransitionError
	var validation *activitytype.ValidationError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())
	case errors.Is(err, activitytype.ErrUnknownType):
		writeError(w, http.StatusBadRequest, "unknown_type", err.Error())
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.As(err, &illegal):
		writeError(w, http.StatusConflict, "illegal_transition", illegal.Error())
	case errors.Is(err, domain.ErrConfigLocked):
		writeError(w, http.StatusConflict, "config_locked", err.Error())
	case errors.Is(err, domain.ErrActivityNotActive):
		writeError(w, http.StatusConflict, "activity_not_active", err.Error())
	case errors.Is(err, domain.ErrAlreadyResponded):
		writeError(w, http.StatusConflict, "already_responded", err.Error())
	case errors.Is(err, domain.ErrActivityExpired):
		writeError(w, http.StatusGone, "activity_expired", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
