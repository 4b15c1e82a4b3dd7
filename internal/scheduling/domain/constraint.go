package domain

import "time"

// ConstraintType is the persisted discriminator for a capture's timing
// constraint. During scheduling it is lifted into a SchedulingPlan so that
// inconsistent field combinations cannot flow through the engine.
type ConstraintType string

const (
	ConstraintFlexible     ConstraintType = "flexible"
	ConstraintDeadlineTime ConstraintType = "deadline_time"
	ConstraintDeadlineDate ConstraintType = "deadline_date"
	ConstraintStartTime    ConstraintType = "start_time"
	ConstraintWindow       ConstraintType = "window"
)

// PlanMode is the scheduling strategy derived from a capture's constraints.
type PlanMode string

const (
	PlanModeFlexible PlanMode = "flexible"
	PlanModeDeadline PlanMode = "deadline"
	PlanModeStart    PlanMode = "start"
	PlanModeWindow   PlanMode = "window"
)

// Slot is a half-open interval [Start, End).
type Slot struct {
	Start time.Time
	End   time.Time
}

// Duration returns the slot length.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether two slots intersect.
func (s Slot) Overlaps(other Slot) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// OverlapMinutes returns the length of the intersection in minutes.
func (s Slot) OverlapMinutes(other Slot) int {
	start := s.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := s.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// SchedulingPlan is the in-memory, consistent representation of a capture's
// constraints for one scheduling run.
type SchedulingPlan struct {
	Mode      PlanMode
	Preferred *Slot
	// PreferredByUser distinguishes an explicit user slot from one the planner
	// derived. A user slot that cannot be honored becomes a decision; a derived
	// one silently falls back to mode search.
	PreferredByUser bool
	Deadline        *time.Time
	WindowStart     *time.Time
	WindowEnd       *time.Time
}
