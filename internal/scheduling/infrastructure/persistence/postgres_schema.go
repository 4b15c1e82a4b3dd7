// Package persistence implements the scheduling repositories for postgres and
// sqlite.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS capture_entries (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	content TEXT NOT NULL,
	kind TEXT NOT NULL,
	estimated_minutes INT NOT NULL DEFAULT 0,
	urgency INT NOT NULL DEFAULT 0,
	impact INT NOT NULL DEFAULT 0,
	blocking BOOLEAN NOT NULL DEFAULT FALSE,
	reschedule_penalty INT NOT NULL DEFAULT 0,
	externality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	importance INT NOT NULL DEFAULT 0,
	constraint_type TEXT NOT NULL,
	constraint_time TIMESTAMPTZ,
	constraint_end TIMESTAMPTZ,
	constraint_date TIMESTAMPTZ,
	original_target_time TIMESTAMPTZ,
	deadline_at TIMESTAMPTZ,
	window_start TIMESTAMPTZ,
	window_end TIMESTAMPTZ,
	start_target_at TIMESTAMPTZ,
	is_soft_start BOOLEAN NOT NULL DEFAULT FALSE,
	cannot_overlap BOOLEAN NOT NULL DEFAULT FALSE,
	start_flexibility TEXT NOT NULL,
	duration_flexibility TEXT NOT NULL,
	min_chunk_minutes INT NOT NULL DEFAULT 0,
	max_splits INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	planned_start TIMESTAMPTZ,
	planned_end TIMESTAMPTZ,
	calendar_event_id TEXT NOT NULL DEFAULT '',
	calendar_event_etag TEXT NOT NULL DEFAULT '',
	reschedule_count INT NOT NULL DEFAULT 0,
	freeze_until TIMESTAMPTZ,
	plan_id UUID,
	manual_touch_at TIMESTAMPTZ,
	scheduling_notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_capture_entries_owner_status
	ON capture_entries (owner_id, status);

CREATE TABLE IF NOT EXISTS plan_runs (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	undone_at TIMESTAMPTZ,
	undo_user_id UUID,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_actions (
	id UUID PRIMARY KEY,
	plan_id UUID NOT NULL REFERENCES plan_runs(id) ON DELETE CASCADE,
	capture_id UUID NOT NULL,
	capture_content TEXT NOT NULL DEFAULT '',
	action_type TEXT NOT NULL,
	prev_state JSONB NOT NULL,
	next_state JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plan_actions_plan ON plan_actions (plan_id);

CREATE TABLE IF NOT EXISTS capture_chunks (
	capture_id UUID NOT NULL,
	start_at TIMESTAMPTZ NOT NULL,
	end_at TIMESTAMPTZ NOT NULL,
	late BOOLEAN NOT NULL DEFAULT FALSE,
	overlapped BOOLEAN NOT NULL DEFAULT FALSE,
	prime BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (capture_id, start_at)
);
`

// EnsurePostgresSchema creates the scheduling tables when missing.
func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure scheduling schema: %w", err)
	}
	return nil
}
