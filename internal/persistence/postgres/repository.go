// Package postgres provides the pgx-backed Store plus transactional outbox
// rows for downstream event delivery.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/engage/internal/domain"
)

const activityColumns = `activity_id, session_id, activity_type, title, description, state, config, order_index, expires_at, created_at, updated_at`

const responseColumns = `response_id, session_id, activity_id, participant_id, payload, submitted_at`

// Repository provides Postgres-backed persistence for activities, responses
// and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateActivity persists the activity and records an outbox event inside one
// transaction.
func (r *Repository) CreateActivity(ctx context.Context, activity domain.Activity) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO activities (` + activityColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	if _, err := tx.Exec(ctx, stmt,
		activity.ID,
		activity.SessionID,
		activity.Type,
		activity.Title,
		activity.Description,
		activity.State,
		activity.Config,
		activity.OrderIndex,
		activity.ExpiresAt,
		activity.CreatedAt,
		activity.UpdatedAt,
	); err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, "activity", activity.ID, "activity.created", activityEvent(activity)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateActivity replaces the record only while the stored state matches
// expected; zero rows affected means a concurrent writer won.
func (r *Repository) UpdateActivity(ctx context.Context, activity domain.Activity, expected domain.State) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `UPDATE activities
        SET title=$2, description=$3, state=$4, config=$5, order_index=$6, expires_at=$7, updated_at=$8
        WHERE activity_id=$1 AND state=$9`
	tag, err := tx.Exec(ctx, stmt,
		activity.ID,
		activity.Title,
		activity.Description,
		activity.State,
		activity.Config,
		activity.OrderIndex,
		activity.ExpiresAt,
		activity.UpdatedAt,
		expected,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM activities WHERE activity_id=$1)`, activity.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrActivityNotFound
		}
		return domain.ErrStateConflict
	}

	eventType := "activity.updated"
	if activity.State != expected {
		eventType = "activity.state_changed"
	}
	if err := insertOutbox(ctx, tx, "activity", activity.ID, eventType, activityEvent(activity)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetActivity retrieves an activity by id, nil when absent.
func (r *Repository) GetActivity(ctx context.Context, activityID string) (*domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities WHERE activity_id=$1`
	row := r.pool.QueryRow(ctx, query, activityID)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

// ListBySession returns the session's activities ordered by position.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities
        WHERE session_id=$1 ORDER BY order_index, created_at`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

// ListOverdue returns active activities whose expiry is at or before now.
func (r *Repository) ListOverdue(ctx context.Context, now time.Time) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities
        WHERE state='active' AND expires_at IS NOT NULL AND expires_at <= $1`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

// InsertResponse persists a new response and its outbox event.
func (r *Repository) InsertResponse(ctx context.Context, response domain.Response) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO responses (` + responseColumns + `) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := tx.Exec(ctx, stmt,
		response.ID,
		response.SessionID,
		response.ActivityID,
		response.ParticipantID,
		response.Payload,
		response.SubmittedAt,
	); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, "response", response.ID, "response.submitted", responseEvent(response)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateResponse replaces a revoted response in place.
func (r *Repository) UpdateResponse(ctx context.Context, response domain.Response) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `UPDATE responses SET payload=$2, submitted_at=$3 WHERE response_id=$1`
	tag, err := tx.Exec(ctx, stmt, response.ID, response.Payload, response.SubmittedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	if err := insertOutbox(ctx, tx, "response", response.ID, "response.revoted", responseEvent(response)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindResponse returns the most recent response for the pair, nil when absent.
func (r *Repository) FindResponse(ctx context.Context, activityID, participantID string) (*domain.Response, error) {
	const query = `SELECT ` + responseColumns + ` FROM responses
        WHERE activity_id=$1 AND participant_id=$2
        ORDER BY submitted_at DESC LIMIT 1`
	row := r.pool.QueryRow(ctx, query, activityID, participantID)
	response, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return response, nil
}

// ListResponses returns all responses for an activity ordered by submission.
func (r *Repository) ListResponses(ctx context.Context, activityID string) ([]domain.Response, error) {
	const query = `SELECT ` + responseColumns + ` FROM responses
        WHERE activity_id=$1 ORDER BY submitted_at`
	rows, err := r.pool.Query(ctx, query, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResponses(rows)
}

// ChangedSince returns session records touched strictly after since, ordered
// by timestamp ascending. Both queries run on the sync indexes; this path is
// hit every few seconds by every connected client.
func (r *Repository) ChangedSince(ctx context.Context, sessionID string, since time.Time) ([]domain.Activity, []domain.Response, error) {
	const activityQuery = `SELECT ` + activityColumns + ` FROM activities
        WHERE session_id=$1 AND updated_at > $2 ORDER BY updated_at`
	rows, err := r.pool.Query(ctx, activityQuery, sessionID, since)
	if err != nil {
		return nil, nil, err
	}
	activities, err := collectActivities(rows)
	rows.Close()
	if err != nil {
		return nil, nil, err
	}

	const responseQuery = `SELECT ` + responseColumns + ` FROM responses
        WHERE session_id=$1 AND submitted_at > $2 ORDER BY submitted_at`
	rows, err = r.pool.Query(ctx, responseQuery, sessionID, since)
	if err != nil {
		return nil, nil, err
	}
	responses, err := collectResponses(rows)
	rows.Close()
	if err != nil {
		return nil, nil, err
	}

	return activities, responses, nil
}

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var activity domain.Activity
	if err := row.Scan(
		&activity.ID,
		&activity.SessionID,
		&activity.Type,
		&activity.Title,
		&activity.Description,
		&activity.State,
		&activity.Config,
		&activity.OrderIndex,
		&activity.ExpiresAt,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &activity, nil
}

func collectActivities(rows pgx.Rows) ([]domain.Activity, error) {
	out := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *activity)
	}
	return out, rows.Err()
}

func scanResponse(row pgx.Row) (*domain.Response, error) {
	var response domain.Response
	if err := row.Scan(
		&response.ID,
		&response.SessionID,
		&response.ActivityID,
		&response.ParticipantID,
		&response.Payload,
		&response.SubmittedAt,
	); err != nil {
		return nil, err
	}
	return &response, nil
}

func collectResponses(rows pgx.Rows) ([]domain.Response, error) {
	out := make([]domain.Response, 0)
	for rows.Next() {
		response, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *response)
	}
	return out, rows.Err()
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic string
}

var eventCatalog = map[string]EventMetadata{
	"activity.created":       {Topic: "activity_events"},
	"activity.updated":       {Topic: "activity_events"},
	"activity.state_changed": {Topic: "activity_events"},
	"response.submitted":     {Topic: "response_events"},
	"response.revoted":       {Topic: "response_events"},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	// One outbox row per aggregate and event type per microsecond; revotes in
	// the same instant collapse into the latest row.
	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, time.Now().UnixMicro())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (dedupe_key) DO UPDATE SET payload = EXCLUDED.payload`
	_, err = tx.Exec(ctx, stmt, aggregateType, aggregateID, eventType, meta.Topic, aggregateID, body, dedupeKey)
	return err
}

func activityEvent(activity domain.Activity) map[string]any {
	return map[string]any{
		"activity_id": activity.ID,
		"session_id":  activity.SessionID,
		"type":        activity.Type,
		"state":       string(activity.State),
		"occurred_at": activity.UpdatedAt,
	}
}

func responseEvent(response domain.Response) map[string]any {
	return map[string]any{
		"response_id":    response.ID,
		"session_id":     response.SessionID,
		"activity_id":    response.ActivityID,
		"participant_id": response.ParticipantID,
		"occurred_at":    response.SubmittedAt,
	}
}
