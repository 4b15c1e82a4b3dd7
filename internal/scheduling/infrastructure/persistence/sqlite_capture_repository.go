package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// SqliteCaptureRepository persists captures in the embedded store.
type SqliteCaptureRepository struct {
	db *sql.DB
}

// NewSqliteCaptureRepository creates the repository.
func NewSqliteCaptureRepository(db *sql.DB) *SqliteCaptureRepository {
	return &SqliteCaptureRepository{db: db}
}

// Save upserts the capture.
func (r *SqliteCaptureRepository) Save(ctx context.Context, c *domain.Capture) error {
	query := `
		INSERT OR REPLACE INTO capture_entries (` + captureColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID().String(), c.OwnerID.String(), c.Content, string(c.Kind), c.EstimatedMinutes,
		c.Urgency, c.Impact, c.Blocking, c.ReschedulePenalty, c.ExternalityScore, c.Importance,
		string(c.ConstraintType), sqlTimePtr(c.ConstraintTime), sqlTimePtr(c.ConstraintEnd), sqlTimePtr(c.ConstraintDate),
		sqlTimePtr(c.OriginalTargetTime), sqlTimePtr(c.DeadlineAt), sqlTimePtr(c.WindowStart), sqlTimePtr(c.WindowEnd), sqlTimePtr(c.StartTargetAt),
		c.IsSoftStart, c.CannotOverlap, string(c.StartFlexibility), string(c.DurationFlexibility),
		c.MinChunkMinutes, c.MaxSplits, string(c.Status), sqlTimePtr(c.PlannedStart), sqlTimePtr(c.PlannedEnd),
		c.CalendarEventID, c.CalendarEventETag, c.RescheduleCount, sqlTimePtr(c.FreezeUntil),
		sqlUUIDPtr(c.PlanID), sqlTimePtr(c.ManualTouchAt), c.SchedulingNotes, sqlTime(c.CreatedAt()), sqlTime(c.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("save capture: %w", err)
	}
	return nil
}

// FindByID loads one capture, nil when absent.
func (r *SqliteCaptureRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Capture, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+captureColumns+` FROM capture_entries WHERE id = ?`, id.String())
	capture, err := scanSqliteCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find capture: %w", err)
	}
	return capture, nil
}

// FindByIDs loads captures in bulk; missing IDs are silently absent.
func (r *SqliteCaptureRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Capture, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+captureColumns+` FROM capture_entries WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("find captures: %w", err)
	}
	defer rows.Close()

	var captures []*domain.Capture
	for rows.Next() {
		capture, err := scanSqliteCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		captures = append(captures, capture)
	}
	return captures, rows.Err()
}

func scanSqliteCapture(row rowScanner) (*domain.Capture, error) {
	var (
		idStr, ownerStr, content, kind     string
		estimatedMinutes, urgency, impact  int
		blocking                           bool
		reschedulePenalty, importance      int
		externalityScore                   float64
		constraintType                     string
		constraintTime, constraintEnd      sql.NullString
		constraintDate, originalTarget     sql.NullString
		deadlineAt, windowStart, windowEnd sql.NullString
		startTargetAt                      sql.NullString
		isSoftStart, cannotOverlap         bool
		startFlex, durationFlex            string
		minChunkMinutes, maxSplits         int
		status                             string
		plannedStart, plannedEnd           sql.NullString
		eventID, eventETag                 string
		rescheduleCount                    int
		freezeUntil                        sql.NullString
		planID                             sql.NullString
		manualTouchAt                      sql.NullString
		schedulingNotes                    string
		createdAtStr, updatedAtStr         string
	)
	err := row.Scan(
		&idStr, &ownerStr, &content, &kind, &estimatedMinutes,
		&urgency, &impact, &blocking, &reschedulePenalty, &externalityScore, &importance,
		&constraintType, &constraintTime, &constraintEnd, &constraintDate,
		&originalTarget, &deadlineAt, &windowStart, &windowEnd, &startTargetAt,
		&isSoftStart, &cannotOverlap, &startFlex, &durationFlex,
		&minChunkMinutes, &maxSplits, &status, &plannedStart, &plannedEnd,
		&eventID, &eventETag, &rescheduleCount, &freezeUntil,
		&planID, &manualTouchAt, &schedulingNotes, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("capture id: %w", err)
	}
	ownerID, err := uuid.Parse(ownerStr)
	if err != nil {
		return nil, fmt.Errorf("owner id: %w", err)
	}
	createdAt, err := parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}

	capture := domain.RehydrateCapture(id, createdAt, updatedAt)
	capture.OwnerID = ownerID
	capture.Content = content
	capture.Kind = domain.Kind(kind)
	capture.EstimatedMinutes = estimatedMinutes
	capture.Urgency = urgency
	capture.Impact = impact
	capture.Blocking = blocking
	capture.ReschedulePenalty = reschedulePenalty
	capture.ExternalityScore = externalityScore
	capture.Importance = importance
	capture.ConstraintType = domain.ConstraintType(constraintType)
	capture.IsSoftStart = isSoftStart
	capture.CannotOverlap = cannotOverlap
	capture.StartFlexibility = domain.StartFlexibility(startFlex)
	capture.DurationFlexibility = domain.DurationFlexibility(durationFlex)
	capture.MinChunkMinutes = minChunkMinutes
	capture.MaxSplits = maxSplits
	capture.Status = domain.Status(status)
	capture.CalendarEventID = eventID
	capture.CalendarEventETag = eventETag
	capture.RescheduleCount = rescheduleCount
	capture.SchedulingNotes = schedulingNotes

	for _, field := range []struct {
		src  sql.NullString
		dest **time.Time
	}{
		{constraintTime, &capture.ConstraintTime},
		{constraintEnd, &capture.ConstraintEnd},
		{constraintDate, &capture.ConstraintDate},
		{originalTarget, &capture.OriginalTargetTime},
		{deadlineAt, &capture.DeadlineAt},
		{windowStart, &capture.WindowStart},
		{windowEnd, &capture.WindowEnd},
		{startTargetAt, &capture.StartTargetAt},
		{plannedStart, &capture.PlannedStart},
		{plannedEnd, &capture.PlannedEnd},
		{freezeUntil, &capture.FreezeUntil},
		{manualTouchAt, &capture.ManualTouchAt},
	} {
		t, err := timeFromNull(field.src)
		if err != nil {
			return nil, err
		}
		*field.dest = t
	}

	capture.PlanID, err = uuidFromNull(planID)
	if err != nil {
		return nil, fmt.Errorf("plan id: %w", err)
	}
	return capture, nil
}
