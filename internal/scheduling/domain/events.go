package domain

import (
	"time"

	sharedDomain "github.com/diaguru/diaguru/internal/shared/domain"
	"github.com/google/uuid"
)

// Event routing keys for the scheduling context.
const (
	RoutingKeyCaptureScheduled   = "scheduling.capture.scheduled"
	RoutingKeyCaptureRescheduled = "scheduling.capture.rescheduled"
	RoutingKeyCaptureUnscheduled = "scheduling.capture.unscheduled"
	RoutingKeyCaptureCompleted   = "scheduling.capture.completed"
	RoutingKeyPlanUndone         = "scheduling.plan.undone"
)

// CaptureScheduled fires when a capture receives a calendar placement.
type CaptureScheduled struct {
	sharedDomain.BaseEvent
	CaptureID uuid.UUID `json:"capture_id"`
	PlanID    uuid.UUID `json:"plan_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// NewCaptureScheduled creates a CaptureScheduled event.
func NewCaptureScheduled(captureID, planID uuid.UUID, start, end time.Time) *CaptureScheduled {
	return &CaptureScheduled{
		BaseEvent: sharedDomain.NewBaseEvent(captureID, "capture", RoutingKeyCaptureScheduled),
		CaptureID: captureID,
		PlanID:    planID,
		Start:     start,
		End:       end,
	}
}

// CaptureRescheduled fires when a placement moves.
type CaptureRescheduled struct {
	sharedDomain.BaseEvent
	CaptureID uuid.UUID `json:"capture_id"`
	PlanID    uuid.UUID `json:"plan_id"`
	OldStart  time.Time `json:"old_start"`
	NewStart  time.Time `json:"new_start"`
	NewEnd    time.Time `json:"new_end"`
}

// NewCaptureRescheduled creates a CaptureRescheduled event.
func NewCaptureRescheduled(captureID, planID uuid.UUID, oldStart, newStart, newEnd time.Time) *CaptureRescheduled {
	return &CaptureRescheduled{
		BaseEvent: sharedDomain.NewBaseEvent(captureID, "capture", RoutingKeyCaptureRescheduled),
		CaptureID: captureID,
		PlanID:    planID,
		OldStart:  oldStart,
		NewStart:  newStart,
		NewEnd:    newEnd,
	}
}

// CaptureUnscheduled fires when a placement is removed without replacement.
type CaptureUnscheduled struct {
	sharedDomain.BaseEvent
	CaptureID uuid.UUID `json:"capture_id"`
	PlanID    uuid.UUID `json:"plan_id"`
	Reason    string    `json:"reason"`
}

// NewCaptureUnscheduled creates a CaptureUnscheduled event.
func NewCaptureUnscheduled(captureID, planID uuid.UUID, reason string) *CaptureUnscheduled {
	return &CaptureUnscheduled{
		BaseEvent: sharedDomain.NewBaseEvent(captureID, "capture", RoutingKeyCaptureUnscheduled),
		CaptureID: captureID,
		PlanID:    planID,
		Reason:    reason,
	}
}

// CaptureCompleted fires when a capture is completed.
type CaptureCompleted struct {
	sharedDomain.BaseEvent
	CaptureID uuid.UUID `json:"capture_id"`
}

// NewCaptureCompleted creates a CaptureCompleted event.
func NewCaptureCompleted(captureID uuid.UUID) *CaptureCompleted {
	return &CaptureCompleted{
		BaseEvent: sharedDomain.NewBaseEvent(captureID, "capture", RoutingKeyCaptureCompleted),
		CaptureID: captureID,
	}
}

// PlanUndone fires when a plan is reverted.
type PlanUndone struct {
	sharedDomain.BaseEvent
	PlanID     uuid.UUID `json:"plan_id"`
	UndoUserID uuid.UUID `json:"undo_user_id"`
}

// NewPlanUndone creates a PlanUndone event.
func NewPlanUndone(planID, undoUserID uuid.UUID) *PlanUndone {
	return &PlanUndone{
		BaseEvent:  sharedDomain.NewBaseEvent(planID, "plan", RoutingKeyPlanUndone),
		PlanID:     planID,
		UndoUserID: undoUserID,
	}
}
