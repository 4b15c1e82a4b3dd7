package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS capture_entries (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	content TEXT NOT NULL,
	kind TEXT NOT NULL,
	estimated_minutes INTEGER NOT NULL DEFAULT 0,
	urgency INTEGER NOT NULL DEFAULT 0,
	impact INTEGER NOT NULL DEFAULT 0,
	blocking INTEGER NOT NULL DEFAULT 0,
	reschedule_penalty INTEGER NOT NULL DEFAULT 0,
	externality_score REAL NOT NULL DEFAULT 0,
	importance INTEGER NOT NULL DEFAULT 0,
	constraint_type TEXT NOT NULL,
	constraint_time TIMESTAMP,
	constraint_end TIMESTAMP,
	constraint_date TIMESTAMP,
	original_target_time TIMESTAMP,
	deadline_at TIMESTAMP,
	window_start TIMESTAMP,
	window_end TIMESTAMP,
	start_target_at TIMESTAMP,
	is_soft_start INTEGER NOT NULL DEFAULT 0,
	cannot_overlap INTEGER NOT NULL DEFAULT 0,
	start_flexibility TEXT NOT NULL,
	duration_flexibility TEXT NOT NULL,
	min_chunk_minutes INTEGER NOT NULL DEFAULT 0,
	max_splits INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	planned_start TIMESTAMP,
	planned_end TIMESTAMP,
	calendar_event_id TEXT NOT NULL DEFAULT '',
	calendar_event_etag TEXT NOT NULL DEFAULT '',
	reschedule_count INTEGER NOT NULL DEFAULT 0,
	freeze_until TIMESTAMP,
	plan_id TEXT,
	manual_touch_at TIMESTAMP,
	scheduling_notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_capture_entries_owner_status
	ON capture_entries (owner_id, status);

CREATE TABLE IF NOT EXISTS plan_runs (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	undone_at TIMESTAMP,
	undo_user_id TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_actions (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plan_runs(id) ON DELETE CASCADE,
	capture_id TEXT NOT NULL,
	capture_content TEXT NOT NULL DEFAULT '',
	action_type TEXT NOT NULL,
	prev_state TEXT NOT NULL,
	next_state TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plan_actions_plan ON plan_actions (plan_id);

CREATE TABLE IF NOT EXISTS capture_chunks (
	capture_id TEXT NOT NULL,
	start_at TIMESTAMP NOT NULL,
	end_at TIMESTAMP NOT NULL,
	late INTEGER NOT NULL DEFAULT 0,
	overlapped INTEGER NOT NULL DEFAULT 0,
	prime INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (capture_id, start_at)
);
`

// EnsureSqliteSchema creates the scheduling tables when missing.
func EnsureSqliteSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure scheduling schema: %w", err)
	}
	return nil
}

// sqlite stores instants as RFC3339 text. Conversions stay in these helpers so
// repositories read naturally.

func sqlTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func sqlTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return sqlTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func timeFromNull(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func sqlUUIDPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func uuidFromNull(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
