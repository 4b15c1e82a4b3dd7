// Package services holds the scheduling engine: constraint planning, slot
// placement, conflict resolution, and advisory decisions.
package services

import (
	"time"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// ScheduleLead is the minimum distance between now and any new placement.
const ScheduleLead = 5 * time.Minute

// Planner lifts a capture's persisted constraint fields into a consistent
// SchedulingPlan for one run. Pure in (capture, now, offset).
type Planner struct{}

// NewPlanner creates a constraint planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// BuildPlan derives the scheduling mode and its parameters. A deadline-bearing
// capture also gets a plan-preferred slot ending exactly at the deadline, which
// lets placement fight for the latest viable position before falling back to
// the earliest one.
func (p *Planner) BuildPlan(c *domain.Capture, now time.Time, offset time.Duration) *domain.SchedulingPlan {
	window := domain.NewWorkingWindow(offset)
	duration := c.Duration()
	earliest := now.Add(ScheduleLead)

	switch p.mode(c, offset) {
	case domain.PlanModeDeadline:
		deadline := c.HardDeadline(offset)
		plan := &domain.SchedulingPlan{Mode: domain.PlanModeDeadline, Deadline: deadline}
		if deadline != nil {
			slot := domain.Slot{Start: deadline.Add(-duration), End: *deadline}
			if !slot.Start.Before(earliest) && window.Contains(slot) {
				plan.Preferred = &slot
			}
		}
		return plan

	case domain.PlanModeStart:
		target := c.StartTargetAt
		if target == nil {
			target = c.ConstraintTime
		}
		plan := &domain.SchedulingPlan{Mode: domain.PlanModeStart, Deadline: c.HardDeadline(offset)}
		if target != nil {
			start := *target
			if start.Before(earliest) {
				start = earliest
			}
			plan.Preferred = &domain.Slot{Start: start, End: start.Add(duration)}
		}
		return plan

	case domain.PlanModeWindow:
		return &domain.SchedulingPlan{
			Mode:        domain.PlanModeWindow,
			WindowStart: c.WindowStart,
			WindowEnd:   c.WindowEnd,
			Deadline:    c.WindowEnd,
		}

	default:
		return &domain.SchedulingPlan{Mode: domain.PlanModeFlexible}
	}
}

// mode maps the constraint type to a plan mode, promoting flexible captures
// that nevertheless carry a deadline-bearing field.
func (p *Planner) mode(c *domain.Capture, offset time.Duration) domain.PlanMode {
	switch c.ConstraintType {
	case domain.ConstraintDeadlineTime, domain.ConstraintDeadlineDate:
		return domain.PlanModeDeadline
	case domain.ConstraintStartTime:
		return domain.PlanModeStart
	case domain.ConstraintWindow:
		if c.WindowStart != nil && c.WindowEnd != nil {
			return domain.PlanModeWindow
		}
		return domain.PlanModeFlexible
	default:
		if c.HardDeadline(offset) != nil {
			return domain.PlanModeDeadline
		}
		return domain.PlanModeFlexible
	}
}
