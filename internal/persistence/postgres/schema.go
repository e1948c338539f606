package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl creates the tables and the two indexes the polling sync query depends
// on. Statements are idempotent so startup can apply them unconditionally.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		activity_id   TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		title         TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		state         TEXT NOT NULL,
		config        JSONB NOT NULL DEFAULT '{}'::jsonb,
		order_index   INTEGER NOT NULL DEFAULT 0,
		expires_at    TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_session_updated
		ON activities (session_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS responses (
		response_id    TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		activity_id    TEXT NOT NULL REFERENCES activities (activity_id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		payload        JSONB NOT NULL DEFAULT '{}'::jsonb,
		submitted_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_activity_submitted
		ON responses (activity_id, submitted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_session_submitted
		ON responses (session_id, submitted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_activity_participant
		ON responses (activity_id, participant_id)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id           BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		topic        TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		payload      JSONB NOT NULL,
		dedupe_key   TEXT NOT NULL UNIQUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		dispatched_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending
		ON outbox (created_at) WHERE dispatched_at IS NULL`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
