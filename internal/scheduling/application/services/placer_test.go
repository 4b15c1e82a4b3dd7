package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

func newFinder(busy ...domain.Slot) *domain.SlotFinder {
	set := domain.NewBusySet(busy, domain.StandardBufferMinutes*time.Minute)
	return domain.NewSlotFinder(set, domain.NewWorkingWindow(0))
}

func TestPlaceFlexibleStartsAtLead(t *testing.T) {
	c := newCapture("quick errand")
	c.EstimatedMinutes = 30
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	slot, err := NewPlacer().Place(c, plan, newFinder(), now)

	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, ts("2025-10-25T12:05:00Z"), slot.Start)
	assert.Equal(t, ts("2025-10-25T12:35:00Z"), slot.End)
}

func TestPlaceDeadlineSkipsInflatedBusy(t *testing.T) {
	c := newCapture("submit report")
	c.EstimatedMinutes = 60
	deadline := ts("2025-10-25T15:00:00Z")
	c.ConstraintType = domain.ConstraintDeadlineTime
	c.DeadlineAt = &deadline
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	finder := newFinder(domain.Slot{Start: ts("2025-10-25T12:00:00Z"), End: ts("2025-10-25T13:00:00Z")})
	slot, err := NewPlacer().Place(c, plan, finder, now)

	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, ts("2025-10-25T13:35:00Z"), slot.Start)
}

func TestPlaceDeadlineImpossibleReturnsTypedError(t *testing.T) {
	c := newCapture("submit report")
	c.EstimatedMinutes = 60
	deadline := ts("2025-10-25T14:00:00Z")
	c.ConstraintType = domain.ConstraintDeadlineTime
	c.DeadlineAt = &deadline
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	finder := newFinder(domain.Slot{Start: ts("2025-10-25T12:00:00Z"), End: ts("2025-10-25T14:00:00Z")})
	slot, err := NewPlacer().Place(c, plan, finder, now)

	assert.Nil(t, slot)
	var noSlot *domain.NoSlotError
	require.ErrorAs(t, err, &noSlot)
	assert.True(t, errors.Is(noSlot.Reason, domain.ErrSlotExceedsDeadline))
	assert.Equal(t, domain.PlanModeDeadline, noSlot.Mode)
	assert.Equal(t, 60, noSlot.DurationMinutes)
	require.NotNil(t, noSlot.Deadline)
	assert.Equal(t, deadline, *noSlot.Deadline)
	assert.Equal(t, now, noSlot.ReferenceNow)
}

func TestPlaceFixedStartDriftsWithinBaseTolerance(t *testing.T) {
	c := newCapture("board meeting")
	c.EstimatedMinutes = 30
	c.ConstraintType = domain.ConstraintStartTime
	c.StartFlexibility = domain.StartHard
	target := ts("2025-10-25T14:00:00Z")
	c.StartTargetAt = &target
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	slot, err := NewPlacer().Place(c, plan, newFinder(), now)
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, target, slot.Start)

	// A blocked target drifts within the one-hour baseline tolerance; the
	// inflated busy interval ends at 15:00, so that is where it lands.
	blocked := newFinder(domain.Slot{Start: ts("2025-10-25T14:00:00Z"), End: ts("2025-10-25T14:30:00Z")})
	slot, err = NewPlacer().Place(c, plan, blocked, now)
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, ts("2025-10-25T15:00:00Z"), slot.Start)
}

func TestPlaceSoftStartWidensTolerance(t *testing.T) {
	c := newCapture("evening run")
	c.EstimatedMinutes = 30
	c.ConstraintType = domain.ConstraintStartTime
	c.StartFlexibility = domain.StartSoft
	target := ts("2025-10-25T14:00:00Z")
	c.StartTargetAt = &target
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	// Inflated busy covers [12:00, 16:00], past the one-hour tolerance on both
	// sides of the target.
	finder := newFinder(domain.Slot{Start: ts("2025-10-25T12:30:00Z"), End: ts("2025-10-25T15:30:00Z")})

	slot, err := NewPlacer().Place(c, plan, finder, now)
	assert.Nil(t, slot)
	var noSlot *domain.NoSlotError
	require.ErrorAs(t, err, &noSlot)
	assert.True(t, errors.Is(noSlot.Reason, domain.ErrNoSlot))

	// A soft start doubles the drift and reaches 16:00.
	c.IsSoftStart = true
	slot, err = NewPlacer().Place(c, plan, finder, now)
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, ts("2025-10-25T16:00:00Z"), slot.Start)
}

func TestPlaceSoftStartDriftsForwardFirst(t *testing.T) {
	c := newCapture("deep work")
	c.EstimatedMinutes = 30
	c.ConstraintType = domain.ConstraintStartTime
	c.StartFlexibility = domain.StartSoft
	target := ts("2025-10-25T14:00:00Z")
	c.StartTargetAt = &target
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	// Inflated busy covers [13:15, 14:35]; the first free grid start after the
	// target is 14:45.
	finder := newFinder(domain.Slot{Start: ts("2025-10-25T13:45:00Z"), End: ts("2025-10-25T14:05:00Z")})
	slot, err := NewPlacer().Place(c, plan, finder, now)

	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, ts("2025-10-25T14:45:00Z"), slot.Start)
}

func TestPlaceSoftStartFallsBackwardWhenForwardBlocked(t *testing.T) {
	c := newCapture("deep work")
	c.EstimatedMinutes = 30
	c.ConstraintType = domain.ConstraintStartTime
	c.StartFlexibility = domain.StartSoft
	target := ts("2025-10-25T14:00:00Z")
	c.StartTargetAt = &target
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	// Inflated busy covers [13:30, 17:00], swallowing the whole forward
	// tolerance; the drift lands before the target instead.
	finder := newFinder(domain.Slot{Start: ts("2025-10-25T14:00:00Z"), End: ts("2025-10-25T16:30:00Z")})
	slot, err := NewPlacer().Place(c, plan, finder, now)

	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, ts("2025-10-25T13:00:00Z"), slot.Start)
}

func TestPlaceAnytimeStartDegradesToFirstFree(t *testing.T) {
	c := newCapture("stretch break")
	c.EstimatedMinutes = 30
	c.ConstraintType = domain.ConstraintStartTime
	target := ts("2025-10-25T14:00:00Z")
	c.StartTargetAt = &target
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	finder := newFinder(domain.Slot{Start: ts("2025-10-25T14:00:00Z"), End: ts("2025-10-25T15:00:00Z")})
	slot, err := NewPlacer().Place(c, plan, finder, now)

	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, ts("2025-10-25T15:30:00Z"), slot.Start)
}

func TestPlaceWindowInsideBand(t *testing.T) {
	c := newCapture("gym")
	c.EstimatedMinutes = 60
	c.ConstraintType = domain.ConstraintWindow
	start := ts("2025-10-25T17:00:00Z")
	end := ts("2025-10-25T20:00:00Z")
	c.WindowStart = &start
	c.WindowEnd = &end
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	slot, err := NewPlacer().Place(c, plan, newFinder(), now)

	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, start, slot.Start)
}

func TestPlaceWindowOutsideWorkingBandFails(t *testing.T) {
	c := newCapture("overnight batch check")
	c.EstimatedMinutes = 120
	c.ConstraintType = domain.ConstraintWindow
	start := ts("2025-10-26T01:00:00Z")
	end := ts("2025-10-26T02:30:00Z")
	c.WindowStart = &start
	c.WindowEnd = &end
	now := ts("2025-10-25T12:00:00Z")
	plan := NewPlanner().BuildPlan(c, now, 0)

	slot, err := NewPlacer().Place(c, plan, newFinder(), now)

	assert.Nil(t, slot)
	var noSlot *domain.NoSlotError
	require.ErrorAs(t, err, &noSlot)
	assert.True(t, errors.Is(noSlot.Reason, domain.ErrNoSlot))
	assert.Equal(t, domain.PlanModeWindow, noSlot.Mode)
	assert.Equal(t, 120, noSlot.DurationMinutes)
}
