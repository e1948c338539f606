package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/engage/internal/domain"
	"example.com/engage/internal/persistence/memory"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func activityAt(id, sessionID string, order int, ts time.Time) domain.Activity {
	return domain.Activity{
		ID:         id,
		SessionID:  sessionID,
		Type:       "poll",
		Title:      id,
		State:      domain.StateDraft,
		Config:     map[string]any{"question": "?"},
		OrderIndex: order,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}

func TestUpdateActivityStateGuard(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	activity := activityAt("a1", "s1", 0, base)
	require.NoError(t, store.CreateActivity(ctx, activity))

	activity.State = domain.StatePublished
	require.NoError(t, store.UpdateActivity(ctx, activity, domain.StateDraft))

	// Stale expectation loses.
	activity.State = domain.StateActive
	err := store.UpdateActivity(ctx, activity, domain.StateDraft)
	require.ErrorIs(t, err, domain.ErrStateConflict)

	stored, err := store.GetActivity(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePublished, stored.State)
}

func TestUpdateActivityMissing(t *testing.T) {
	store := memory.NewStore()
	err := store.UpdateActivity(context.Background(), activityAt("ghost", "s1", 0, base), domain.StateDraft)
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
}

func TestGetActivityCopiesConfig(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateActivity(ctx, activityAt("a1", "s1", 0, base)))

	first, err := store.GetActivity(ctx, "a1")
	require.NoError(t, err)
	first.Config["question"] = "mutated"

	second, err := store.GetActivity(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "?", second.Config["question"], "callers cannot mutate stored state")
}

func TestListBySessionOrdering(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateActivity(ctx, activityAt("second", "s1", 2, base)))
	require.NoError(t, store.CreateActivity(ctx, activityAt("first", "s1", 1, base)))
	require.NoError(t, store.CreateActivity(ctx, activityAt("other", "s2", 0, base)))

	activities, err := store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.Equal(t, "first", activities[0].ID)
	assert.Equal(t, "second", activities[1].ID)
}

func TestListOverdueBoundary(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	expires := base.Add(time.Minute)
	active := activityAt("a1", "s1", 0, base)
	active.State = domain.StateActive
	active.ExpiresAt = &expires
	require.NoError(t, store.CreateActivity(ctx, active))

	overdue, err := store.ListOverdue(ctx, expires.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, overdue)

	// The expiry instant itself counts as overdue.
	overdue, err = store.ListOverdue(ctx, expires)
	require.NoError(t, err)
	assert.Len(t, overdue, 1)
}

func TestFindResponseReturnsLatest(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	older := domain.Response{ID: "r1", SessionID: "s1", ActivityID: "a1", ParticipantID: "p1", Payload: map[string]any{"v": "old"}, SubmittedAt: base}
	newer := domain.Response{ID: "r2", SessionID: "s1", ActivityID: "a1", ParticipantID: "p1", Payload: map[string]any{"v": "new"}, SubmittedAt: base.Add(time.Minute)}
	require.NoError(t, store.InsertResponse(ctx, older))
	require.NoError(t, store.InsertResponse(ctx, newer))

	found, err := store.FindResponse(ctx, "a1", "p1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "r2", found.ID)

	missing, err := store.FindResponse(ctx, "a1", "p2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestChangedSinceIsStrictlyAfter(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.CreateActivity(ctx, activityAt("a1", "s1", 0, base)))
	require.NoError(t, store.InsertResponse(ctx, domain.Response{
		ID: "r1", SessionID: "s1", ActivityID: "a1", ParticipantID: "p1",
		Payload: map[string]any{}, SubmittedAt: base.Add(time.Second),
	}))

	activities, responses, err := store.ChangedSince(ctx, "s1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, activities, 1)
	assert.Len(t, responses, 1)

	// Records stamped exactly at the cursor are excluded, so re-polling with
	// the returned watermark yields an empty delta.
	activities, responses, err = store.ChangedSince(ctx, "s1", base.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, activities)
	assert.Empty(t, responses)

	activities, _, err = store.ChangedSince(ctx, "s1", base.Add(-time.Second))
	require.NoError(t, err)
	assert.Len(t, activities, 1)
}

func TestChangedSinceOrdersAscending(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	for i, id := range []string{"r3", "r1", "r2"} {
		offset := map[string]time.Duration{"r1": time.Second, "r2": 2 * time.Second, "r3": 3 * time.Second}[id]
		require.NoError(t, store.InsertResponse(ctx, domain.Response{
			ID: id, SessionID: "s1", ActivityID: "a1", ParticipantID: "p" + string(rune('0'+i)),
			Payload: map[string]any{}, SubmittedAt: base.Add(offset),
		}))
	}

	_, responses, err := store.ChangedSince(ctx, "s1", time.Time{})
	require.NoError(t, err)
	require.Len(t, responses, 3)
	assert.Equal(t, "r1", responses[0].ID)
	assert.Equal(t, "r2", responses[1].ID)
	assert.Equal(t, "r3", responses[2].ID)
}
