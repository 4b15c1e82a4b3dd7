package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func newCapture(content string) *domain.Capture {
	return domain.NewCapture(uuid.New(), content)
}

func TestBuildPlanFlexible(t *testing.T) {
	plan := NewPlanner().BuildPlan(newCapture("read paper"), ts("2025-10-25T12:00:00Z"), 0)

	assert.Equal(t, domain.PlanModeFlexible, plan.Mode)
	assert.Nil(t, plan.Preferred)
	assert.Nil(t, plan.Deadline)
}

func TestBuildPlanDeadlinePrefersLatestViableSlot(t *testing.T) {
	c := newCapture("submit report")
	c.EstimatedMinutes = 60
	deadline := ts("2025-10-25T16:00:00Z")
	c.ConstraintType = domain.ConstraintDeadlineTime
	c.DeadlineAt = &deadline

	plan := NewPlanner().BuildPlan(c, ts("2025-10-25T12:00:00Z"), 0)

	assert.Equal(t, domain.PlanModeDeadline, plan.Mode)
	require.NotNil(t, plan.Deadline)
	assert.Equal(t, deadline, *plan.Deadline)
	require.NotNil(t, plan.Preferred)
	assert.Equal(t, ts("2025-10-25T15:00:00Z"), plan.Preferred.Start)
	assert.Equal(t, deadline, plan.Preferred.End)
	assert.False(t, plan.PreferredByUser)
}

func TestBuildPlanDeadlineTooCloseOmitsPreferred(t *testing.T) {
	c := newCapture("submit report")
	c.EstimatedMinutes = 60
	deadline := ts("2025-10-25T12:30:00Z") // latest start would land in the past
	c.ConstraintType = domain.ConstraintDeadlineTime
	c.DeadlineAt = &deadline

	plan := NewPlanner().BuildPlan(c, ts("2025-10-25T12:00:00Z"), 0)

	assert.Equal(t, domain.PlanModeDeadline, plan.Mode)
	assert.Nil(t, plan.Preferred)
}

func TestBuildPlanDeadlineOutsideWorkingBandOmitsPreferred(t *testing.T) {
	c := newCapture("night shift prep")
	c.EstimatedMinutes = 60
	deadline := ts("2025-10-26T23:30:00Z") // [22:30, 23:30] is past closing
	c.ConstraintType = domain.ConstraintDeadlineTime
	c.DeadlineAt = &deadline

	plan := NewPlanner().BuildPlan(c, ts("2025-10-25T12:00:00Z"), 0)

	assert.Nil(t, plan.Preferred)
}

func TestBuildPlanPromotesFlexibleWithDeadline(t *testing.T) {
	c := newCapture("renew passport")
	date := ts("2025-10-26T00:00:00Z")
	c.ConstraintDate = &date

	plan := NewPlanner().BuildPlan(c, ts("2025-10-25T12:00:00Z"), 0)

	assert.Equal(t, domain.PlanModeDeadline, plan.Mode)
	require.NotNil(t, plan.Deadline)
}

func TestBuildPlanStartClampsPastTargetToLead(t *testing.T) {
	c := newCapture("call mom")
	c.EstimatedMinutes = 30
	target := ts("2025-10-25T11:00:00Z")
	c.ConstraintType = domain.ConstraintStartTime
	c.StartTargetAt = &target

	plan := NewPlanner().BuildPlan(c, ts("2025-10-25T12:00:00Z"), 0)

	assert.Equal(t, domain.PlanModeStart, plan.Mode)
	require.NotNil(t, plan.Preferred)
	assert.Equal(t, ts("2025-10-25T12:05:00Z"), plan.Preferred.Start)
	assert.Equal(t, ts("2025-10-25T12:35:00Z"), plan.Preferred.End)
}

func TestBuildPlanStartTargetIsNotADeadline(t *testing.T) {
	c := newCapture("call mom")
	c.EstimatedMinutes = 30
	target := ts("2025-10-25T14:00:00Z")
	c.ConstraintType = domain.ConstraintStartTime
	c.StartTargetAt = &target

	plan := NewPlanner().BuildPlan(c, ts("2025-10-25T12:00:00Z"), 0)

	assert.Equal(t, domain.PlanModeStart, plan.Mode)
	// The target bounds when work should begin, not when it must end, so the
	// plan carries no deadline and the placement may run past the target.
	assert.Nil(t, plan.Deadline)
}

func TestBuildPlanWindow(t *testing.T) {
	c := newCapture("gym")
	start := ts("2025-10-25T17:00:00Z")
	end := ts("2025-10-25T20:00:00Z")
	c.ConstraintType = domain.ConstraintWindow
	c.WindowStart = &start
	c.WindowEnd = &end

	plan := NewPlanner().BuildPlan(c, ts("2025-10-25T12:00:00Z"), 0)

	assert.Equal(t, domain.PlanModeWindow, plan.Mode)
	require.NotNil(t, plan.WindowStart)
	require.NotNil(t, plan.Deadline)
	assert.Equal(t, end, *plan.Deadline)
}

func TestBuildPlanWindowWithoutBoundsDegradesToFlexible(t *testing.T) {
	c := newCapture("gym")
	c.ConstraintType = domain.ConstraintWindow

	plan := NewPlanner().BuildPlan(c, ts("2025-10-25T12:00:00Z"), 0)

	assert.Equal(t, domain.PlanModeFlexible, plan.Mode)
}
