package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/engage/internal/activitytype"
	"example.com/engage/internal/activitytype/builtin"
	"example.com/engage/internal/api"
	"example.com/engage/internal/auth"
	"example.com/engage/internal/domain"
	"example.com/engage/internal/persistence/memory"
)

func newMux(t *testing.T) *http.ServeMux {
	t.Helper()
	registry := activitytype.NewRegistry()
	require.NoError(t, builtin.RegisterAll(registry))

	service := domain.NewService(registry, memory.NewStore())
	handler := api.NewHandler(service, registry)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func claimsFor(scopes ...string) *auth.Claims {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	return &auth.Claims{Subject: "user-1", Scopes: set}
}

func doJSON(t *testing.T, mux *http.ServeMux, claims *auth.Claims, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createPoll(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesWrite), http.MethodPost, "/v1/activities", map[string]any{
		"session_id": "session-1",
		"type":       "poll",
		"title":      "Colour poll",
		"config": map[string]any{
			"question": "Favourite colour?",
			"options":  []string{"Red", "Blue"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["id"].(string)
}

func transition(t *testing.T, mux *http.ServeMux, id, target string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, mux, claimsFor(auth.ScopeActivitiesWrite), http.MethodPost,
		"/v1/activities/"+id+"/transition", map[string]any{"target_state": target})
}

func TestCreateActivity(t *testing.T) {
	mux := newMux(t)
	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesWrite), http.MethodPost, "/v1/activities", map[string]any{
		"session_id": "session-1",
		"type":       "poll",
		"title":      "Colour poll",
		"config": map[string]any{
			"question": "Favourite colour?",
			"options":  []string{"Red", "Blue"},
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "draft", body["state"])
	assert.Equal(t, "poll", body["type"])
	assert.NotEmpty(t, body["id"])
}

func TestCreateActivityInvalidConfig(t *testing.T) {
	mux := newMux(t)
	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesWrite), http.MethodPost, "/v1/activities", map[string]any{
		"session_id": "session-1",
		"type":       "poll",
		"title":      "Broken",
		"config":     map[string]any{"question": "?"},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decode(t, rec)["type"])
}

func TestCreateActivityUnknownType(t *testing.T) {
	mux := newMux(t)
	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesWrite), http.MethodPost, "/v1/activities", map[string]any{
		"session_id": "session-1",
		"type":       "karaoke",
		"title":      "Nope",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_type", decode(t, rec)["type"])
}

func TestCreateActivityRequiresWriteScope(t *testing.T) {
	mux := newMux(t)
	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesRead), http.MethodPost, "/v1/activities", map[string]any{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, nil, http.MethodPost, "/v1/activities", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetActivityNotFound(t *testing.T) {
	mux := newMux(t)
	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesRead), http.MethodGet, "/v1/activities/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["type"])
}

func TestTransitionLifecycle(t *testing.T) {
	mux := newMux(t)
	id := createPoll(t, mux)

	rec := transition(t, mux, id, "published")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "published", decode(t, rec)["state"])

	rec = transition(t, mux, id, "active")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", decode(t, rec)["state"])
}

func TestTransitionIllegal(t *testing.T) {
	mux := newMux(t)
	id := createPoll(t, mux)

	rec := transition(t, mux, id, "active")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "illegal_transition", decode(t, rec)["type"])
}

func TestUpdateConfiguration(t *testing.T) {
	mux := newMux(t)
	id := createPoll(t, mux)

	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesWrite), http.MethodPatch, "/v1/activities/"+id, map[string]any{
		"config": map[string]any{
			"question": "Best colour?",
			"options":  []string{"Red", "Blue", "Green"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	config := decode(t, rec)["config"].(map[string]any)
	assert.Equal(t, "Best colour?", config["question"])
}

func TestUpdateConfigurationLockedWhenActive(t *testing.T) {
	mux := newMux(t)
	id := createPoll(t, mux)
	transition(t, mux, id, "published")
	transition(t, mux, id, "active")

	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesWrite), http.MethodPatch, "/v1/activities/"+id, map[string]any{
		"config": map[string]any{
			"question": "Best colour?",
			"options":  []string{"Red", "Blue"},
		},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "config_locked", decode(t, rec)["type"])
}

func TestSubmitResponse(t *testing.T) {
	mux := newMux(t)
	id := createPoll(t, mux)
	transition(t, mux, id, "published")
	transition(t, mux, id, "active")

	rec := doJSON(t, mux, claimsFor(auth.ScopeResponsesWrite), http.MethodPost, "/v1/activities/"+id+"/responses", map[string]any{
		"payload": map[string]any{"selected_options": []string{"Red"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "user-1", body["participant_id"], "identity comes from the token")
}

func TestSubmitResponseRequiresActiveActivity(t *testing.T) {
	mux := newMux(t)
	id := createPoll(t, mux)

	rec := doJSON(t, mux, claimsFor(auth.ScopeResponsesWrite), http.MethodPost, "/v1/activities/"+id+"/responses", map[string]any{
		"payload": map[string]any{"selected_options": []string{"Red"}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "activity_not_active", decode(t, rec)["type"])
}

func TestSubmitResponseRequiresScope(t *testing.T) {
	mux := newMux(t)
	id := createPoll(t, mux)

	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesRead), http.MethodPost, "/v1/activities/"+id+"/responses", map[string]any{
		"payload": map[string]any{"selected_options": []string{"Red"}},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResults(t *testing.T) {
	mux := newMux(t)
	id := createPoll(t, mux)
	transition(t, mux, id, "published")
	transition(t, mux, id, "active")

	rec := doJSON(t, mux, claimsFor(auth.ScopeResponsesWrite), http.MethodPost, "/v1/activities/"+id+"/responses", map[string]any{
		"payload": map[string]any{"selected_options": []string{"Red"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, claimsFor(auth.ScopeActivitiesRead), http.MethodGet, "/v1/activities/"+id+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["total_responses"])
	assert.Equal(t, float64(1), body["unique_participants"])

	counts := body["results"].(map[string]any)["vote_counts"].(map[string]any)
	assert.Equal(t, float64(1), counts["Red"])
	assert.Equal(t, float64(0), counts["Blue"])
}

func TestSessionState(t *testing.T) {
	mux := newMux(t)
	id := createPoll(t, mux)
	transition(t, mux, id, "published")

	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesRead), http.MethodGet, "/v1/sessions/session-1/state", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.Len(t, body["activities"], 1)
	cursor := body["cursor"].(string)
	require.NotEmpty(t, cursor)

	// Re-poll with the returned cursor: empty delta, cursor echoed.
	rec = doJSON(t, mux, claimsFor(auth.ScopeActivitiesRead), http.MethodGet, "/v1/sessions/session-1/state?cursor="+cursor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Empty(t, body["activities"])
	assert.Empty(t, body["responses"])
	assert.Equal(t, cursor, body["cursor"])
}

func TestSessionStateRejectsBadCursor(t *testing.T) {
	mux := newMux(t)
	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesRead), http.MethodGet, "/v1/sessions/session-1/state?cursor=%21%21", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decode(t, rec)["type"])
}

func TestListSessionActivitiesOrdered(t *testing.T) {
	mux := newMux(t)
	for i, title := range []string{"second", "first"} {
		rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesWrite), http.MethodPost, "/v1/activities", map[string]any{
			"session_id":  "session-1",
			"type":        "poll",
			"title":       title,
			"order_index": 1 - i,
			"config": map[string]any{
				"question": "?",
				"options":  []string{"A", "B"},
			},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesRead), http.MethodGet, "/v1/sessions/session-1/activities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].(map[string]any)["title"])
	assert.Equal(t, "second", items[1].(map[string]any)["title"])
}

func TestListActivityTypes(t *testing.T) {
	mux := newMux(t)
	rec := doJSON(t, mux, claimsFor(auth.ScopeActivitiesRead), http.MethodGet, "/v1/activity-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	types := decode(t, rec)["types"].([]any)
	ids := make(map[string]bool)
	for _, item := range types {
		ids[item.(map[string]any)["id"].(string)] = true
	}
	for _, id := range []string{"poll", "quiz", "word_cloud", "planning_poker", "qna"} {
		assert.Truef(t, ids[id], "missing %s", id)
	}
}

func TestHealthzSkipsAuth(t *testing.T) {
	mux := newMux(t)
	rec := doJSON(t, mux, nil, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
