package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/diaguru/diaguru/internal/shared/domain"
	"github.com/google/uuid"
)

// ActionType classifies a plan action.
type ActionType string

const (
	ActionScheduled   ActionType = "scheduled"
	ActionRescheduled ActionType = "rescheduled"
	ActionUnscheduled ActionType = "unscheduled"
)

// Plan groups every mutation of one scheduling run into a single auditable,
// reversible unit.
type Plan struct {
	sharedDomain.BaseAggregateRoot

	OwnerID    uuid.UUID
	Summary    string
	UndoneAt   *time.Time
	UndoUserID *uuid.UUID
	Actions    []*PlanAction
}

// PlanAction is one reversible mutation record inside a plan.
type PlanAction struct {
	ID             uuid.UUID
	PlanID         uuid.UUID
	CaptureID      uuid.UUID
	CaptureContent string
	ActionType     ActionType
	Prev           PlacementSnapshot
	Next           PlacementSnapshot
	CreatedAt      time.Time
}

// NewPlan opens a plan for one scheduling run.
func NewPlan(ownerID uuid.UUID) *Plan {
	return &Plan{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		OwnerID:           ownerID,
	}
}

// RehydratePlan recreates a plan from persisted state.
func RehydratePlan(
	id uuid.UUID,
	ownerID uuid.UUID,
	summary string,
	undoneAt *time.Time,
	undoUserID *uuid.UUID,
	actions []*PlanAction,
	createdAt, updatedAt time.Time,
) *Plan {
	base := sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	return &Plan{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(base),
		OwnerID:           ownerID,
		Summary:           summary,
		UndoneAt:          undoneAt,
		UndoUserID:        undoUserID,
		Actions:           actions,
	}
}

// AppendAction records a mutation with its prev and next snapshots and returns
// the action.
func (p *Plan) AppendAction(capture *Capture, actionType ActionType, prev, next PlacementSnapshot) *PlanAction {
	action := &PlanAction{
		ID:             uuid.New(),
		PlanID:         p.ID(),
		CaptureID:      capture.ID(),
		CaptureContent: capture.Content,
		ActionType:     actionType,
		Prev:           prev,
		Next:           next,
		CreatedAt:      time.Now().UTC(),
	}
	p.Actions = append(p.Actions, action)
	p.Touch()
	return action
}

// Finalize sets the plan summary from its action counts.
func (p *Plan) Finalize() {
	var scheduled, moved, unscheduled int
	for _, a := range p.Actions {
		switch a.ActionType {
		case ActionScheduled:
			scheduled++
		case ActionRescheduled:
			moved++
		case ActionUnscheduled:
			unscheduled++
		}
	}
	p.Summary = fmt.Sprintf("scheduled:%d moved:%d unscheduled:%d", scheduled, moved, unscheduled)
	p.Touch()
}

// IsUndone reports whether the plan was already reverted.
func (p *Plan) IsUndone() bool {
	return p.UndoneAt != nil
}

// MarkUndone records a successful undo.
func (p *Plan) MarkUndone(userID uuid.UUID) error {
	if p.IsUndone() {
		return ErrPlanAlreadyUndone
	}
	now := time.Now().UTC()
	p.UndoneAt = &now
	p.UndoUserID = &userID
	p.Touch()
	p.AddDomainEvent(NewPlanUndone(p.ID(), userID))
	return nil
}
