package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

const captureColumns = `id, owner_id, content, kind, estimated_minutes,
	urgency, impact, blocking, reschedule_penalty, externality_score, importance,
	constraint_type, constraint_time, constraint_end, constraint_date,
	original_target_time, deadline_at, window_start, window_end, start_target_at,
	is_soft_start, cannot_overlap, start_flexibility, duration_flexibility,
	min_chunk_minutes, max_splits, status, planned_start, planned_end,
	calendar_event_id, calendar_event_etag, reschedule_count, freeze_until,
	plan_id, manual_touch_at, scheduling_notes, created_at, updated_at`

// PostgresCaptureRepository persists captures in postgres.
type PostgresCaptureRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCaptureRepository creates the repository.
func NewPostgresCaptureRepository(pool *pgxpool.Pool) *PostgresCaptureRepository {
	return &PostgresCaptureRepository{pool: pool}
}

// Save upserts the capture.
func (r *PostgresCaptureRepository) Save(ctx context.Context, c *domain.Capture) error {
	query := `
		INSERT INTO capture_entries (` + captureColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29,
			$30, $31, $32, $33, $34, $35, $36, $37, $38)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			kind = EXCLUDED.kind,
			estimated_minutes = EXCLUDED.estimated_minutes,
			urgency = EXCLUDED.urgency,
			impact = EXCLUDED.impact,
			blocking = EXCLUDED.blocking,
			reschedule_penalty = EXCLUDED.reschedule_penalty,
			externality_score = EXCLUDED.externality_score,
			importance = EXCLUDED.importance,
			constraint_type = EXCLUDED.constraint_type,
			constraint_time = EXCLUDED.constraint_time,
			constraint_end = EXCLUDED.constraint_end,
			constraint_date = EXCLUDED.constraint_date,
			original_target_time = EXCLUDED.original_target_time,
			deadline_at = EXCLUDED.deadline_at,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			start_target_at = EXCLUDED.start_target_at,
			is_soft_start = EXCLUDED.is_soft_start,
			cannot_overlap = EXCLUDED.cannot_overlap,
			start_flexibility = EXCLUDED.start_flexibility,
			duration_flexibility = EXCLUDED.duration_flexibility,
			min_chunk_minutes = EXCLUDED.min_chunk_minutes,
			max_splits = EXCLUDED.max_splits,
			status = EXCLUDED.status,
			planned_start = EXCLUDED.planned_start,
			planned_end = EXCLUDED.planned_end,
			calendar_event_id = EXCLUDED.calendar_event_id,
			calendar_event_etag = EXCLUDED.calendar_event_etag,
			reschedule_count = EXCLUDED.reschedule_count,
			freeze_until = EXCLUDED.freeze_until,
			plan_id = EXCLUDED.plan_id,
			manual_touch_at = EXCLUDED.manual_touch_at,
			scheduling_notes = EXCLUDED.scheduling_notes,
			updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query,
		c.ID(), c.OwnerID, c.Content, string(c.Kind), c.EstimatedMinutes,
		c.Urgency, c.Impact, c.Blocking, c.ReschedulePenalty, c.ExternalityScore, c.Importance,
		string(c.ConstraintType), c.ConstraintTime, c.ConstraintEnd, c.ConstraintDate,
		c.OriginalTargetTime, c.DeadlineAt, c.WindowStart, c.WindowEnd, c.StartTargetAt,
		c.IsSoftStart, c.CannotOverlap, string(c.StartFlexibility), string(c.DurationFlexibility),
		c.MinChunkMinutes, c.MaxSplits, string(c.Status), c.PlannedStart, c.PlannedEnd,
		c.CalendarEventID, c.CalendarEventETag, c.RescheduleCount, c.FreezeUntil,
		c.PlanID, c.ManualTouchAt, c.SchedulingNotes, c.CreatedAt(), c.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("save capture: %w", err)
	}
	return nil
}

// FindByID loads one capture, nil when absent.
func (r *PostgresCaptureRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Capture, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+captureColumns+` FROM capture_entries WHERE id = $1`, id)
	capture, err := scanCapture(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find capture: %w", err)
	}
	return capture, nil
}

// FindByIDs loads captures in bulk; missing IDs are silently absent.
func (r *PostgresCaptureRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Capture, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+captureColumns+` FROM capture_entries WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("find captures: %w", err)
	}
	defer rows.Close()

	var captures []*domain.Capture
	for rows.Next() {
		capture, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		captures = append(captures, capture)
	}
	return captures, rows.Err()
}

// rowScanner covers pgx.Row and pgx.Rows as well as database/sql rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (*domain.Capture, error) {
	var (
		c                               domain.Capture
		id                              uuid.UUID
		kind, constraintType            string
		startFlex, durationFlex, status string
		createdAt, updatedAt            time.Time
	)
	err := row.Scan(
		&id, &c.OwnerID, &c.Content, &kind, &c.EstimatedMinutes,
		&c.Urgency, &c.Impact, &c.Blocking, &c.ReschedulePenalty, &c.ExternalityScore, &c.Importance,
		&constraintType, &c.ConstraintTime, &c.ConstraintEnd, &c.ConstraintDate,
		&c.OriginalTargetTime, &c.DeadlineAt, &c.WindowStart, &c.WindowEnd, &c.StartTargetAt,
		&c.IsSoftStart, &c.CannotOverlap, &startFlex, &durationFlex,
		&c.MinChunkMinutes, &c.MaxSplits, &status, &c.PlannedStart, &c.PlannedEnd,
		&c.CalendarEventID, &c.CalendarEventETag, &c.RescheduleCount, &c.FreezeUntil,
		&c.PlanID, &c.ManualTouchAt, &c.SchedulingNotes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	capture := domain.RehydrateCapture(id, createdAt, updatedAt)
	capture.OwnerID = c.OwnerID
	capture.Content = c.Content
	capture.Kind = domain.Kind(kind)
	capture.EstimatedMinutes = c.EstimatedMinutes
	capture.Urgency = c.Urgency
	capture.Impact = c.Impact
	capture.Blocking = c.Blocking
	capture.ReschedulePenalty = c.ReschedulePenalty
	capture.ExternalityScore = c.ExternalityScore
	capture.Importance = c.Importance
	capture.ConstraintType = domain.ConstraintType(constraintType)
	capture.ConstraintTime = c.ConstraintTime
	capture.ConstraintEnd = c.ConstraintEnd
	capture.ConstraintDate = c.ConstraintDate
	capture.OriginalTargetTime = c.OriginalTargetTime
	capture.DeadlineAt = c.DeadlineAt
	capture.WindowStart = c.WindowStart
	capture.WindowEnd = c.WindowEnd
	capture.StartTargetAt = c.StartTargetAt
	capture.IsSoftStart = c.IsSoftStart
	capture.CannotOverlap = c.CannotOverlap
	capture.StartFlexibility = domain.StartFlexibility(startFlex)
	capture.DurationFlexibility = domain.DurationFlexibility(durationFlex)
	capture.MinChunkMinutes = c.MinChunkMinutes
	capture.MaxSplits = c.MaxSplits
	capture.Status = domain.Status(status)
	capture.PlannedStart = c.PlannedStart
	capture.PlannedEnd = c.PlannedEnd
	capture.CalendarEventID = c.CalendarEventID
	capture.CalendarEventETag = c.CalendarEventETag
	capture.RescheduleCount = c.RescheduleCount
	capture.FreezeUntil = c.FreezeUntil
	capture.PlanID = c.PlanID
	capture.ManualTouchAt = c.ManualTouchAt
	capture.SchedulingNotes = c.SchedulingNotes
	return capture, nil
}
