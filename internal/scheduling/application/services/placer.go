package services

import (
	"time"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// Fixed-start placements may drift from their target in either direction:
// one hour by default, two when the capture marks its start as soft.
const (
	StartTolerance     = time.Hour
	SoftStartTolerance = 2 * time.Hour
)

// Placer runs non-preemptive slot search for one capture against a busy set.
type Placer struct{}

// NewPlacer creates a slot placer.
func NewPlacer() *Placer {
	return &Placer{}
}

// Place finds a free slot honoring the plan without touching existing events.
// A nil result always comes with a *domain.NoSlotError.
func (p *Placer) Place(
	c *domain.Capture,
	plan *domain.SchedulingPlan,
	finder *domain.SlotFinder,
	now time.Time,
) (*domain.Slot, error) {
	startFrom := now.Add(ScheduleLead)
	duration := c.Duration()

	switch plan.Mode {
	case domain.PlanModeDeadline:
		if plan.Deadline == nil {
			if slot := finder.FindFirstFree(duration, startFrom); slot != nil {
				return slot, nil
			}
			return nil, p.noSlot(c, plan, domain.ErrNoSlot, now)
		}
		if slot := finder.FindBeforeDeadline(duration, startFrom, *plan.Deadline); slot != nil {
			return slot, nil
		}
		return nil, p.noSlot(c, plan, domain.ErrSlotExceedsDeadline, now)

	case domain.PlanModeStart:
		if plan.Preferred == nil {
			if slot := finder.FindFirstFree(duration, startFrom); slot != nil {
				return slot, nil
			}
			return nil, p.noSlot(c, plan, domain.ErrNoSlot, now)
		}
		if slot := p.placeAtStart(c, *plan.Preferred, finder, startFrom); slot != nil {
			return slot, nil
		}
		return nil, p.noSlot(c, plan, domain.ErrNoSlot, now)

	case domain.PlanModeWindow:
		if plan.WindowStart == nil || plan.WindowEnd == nil {
			if slot := finder.FindFirstFree(duration, startFrom); slot != nil {
				return slot, nil
			}
			return nil, p.noSlot(c, plan, domain.ErrNoSlot, now)
		}
		if slot := finder.FindWithinWindow(duration, startFrom, *plan.WindowStart, *plan.WindowEnd); slot != nil {
			return slot, nil
		}
		if slot := finder.FindLatestWithinWindow(duration, startFrom, *plan.WindowStart, *plan.WindowEnd); slot != nil {
			return slot, nil
		}
		return nil, p.noSlot(c, plan, domain.ErrNoSlot, now)

	default:
		if slot := finder.FindFirstFree(duration, startFrom); slot != nil {
			return slot, nil
		}
		return nil, p.noSlot(c, plan, domain.ErrNoSlot, now)
	}
}

// placeAtStart honors a fixed start: the exact slot when free, otherwise a
// drift around the target (forward first) within the tolerance, doubled when
// the capture's start is soft. Anytime degrades to first-free from the target.
func (p *Placer) placeAtStart(c *domain.Capture, preferred domain.Slot, finder *domain.SlotFinder, startFrom time.Time) *domain.Slot {
	duration := c.Duration()

	if finder.Window.Contains(preferred) && finder.Busy.IsFree(preferred) {
		return &preferred
	}

	if c.StartFlexibility == domain.StartAnytime {
		return finder.FindFirstFree(duration, preferred.Start)
	}

	tolerance := StartTolerance
	if c.IsSoftStart {
		tolerance = SoftStartTolerance
	}

	latest := preferred.Start.Add(tolerance)
	for cand := preferred.Start.Add(finder.Step); !cand.After(latest); cand = cand.Add(finder.Step) {
		slot := domain.Slot{Start: cand, End: cand.Add(duration)}
		if finder.Window.Contains(slot) && finder.Busy.IsFree(slot) {
			return &slot
		}
	}
	earliestBack := preferred.Start.Add(-tolerance)
	if earliestBack.Before(startFrom) {
		earliestBack = startFrom
	}
	for cand := preferred.Start.Add(-finder.Step); !cand.Before(earliestBack); cand = cand.Add(-finder.Step) {
		slot := domain.Slot{Start: cand, End: cand.Add(duration)}
		if finder.Window.Contains(slot) && finder.Busy.IsFree(slot) {
			return &slot
		}
	}
	return nil
}

func (p *Placer) noSlot(c *domain.Capture, plan *domain.SchedulingPlan, reason error, now time.Time) error {
	return &domain.NoSlotError{
		Reason:          reason,
		CaptureID:       c.ID(),
		Mode:            plan.Mode,
		DurationMinutes: c.DurationMinutes(),
		Deadline:        plan.Deadline,
		ReferenceNow:    now,
	}
}
