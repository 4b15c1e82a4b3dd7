package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationMinutesClamping(t *testing.T) {
	tests := []struct {
		name      string
		estimated int
		want      int
	}{
		{"default", 0, 30},
		{"below floor", 2, 5},
		{"above ceiling", 600, 480},
		{"in range", 45, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCapture("x")
			c.EstimatedMinutes = tt.estimated
			assert.Equal(t, tt.want, c.DurationMinutes())
		})
	}
}

func TestResolvedDeadlinePicksEarliest(t *testing.T) {
	c := newTestCapture("ship release")
	later := ts("2025-10-27T12:00:00Z")
	earlier := ts("2025-10-26T09:00:00Z")
	c.DeadlineAt = &later
	c.WindowEnd = &earlier

	deadline := c.ResolvedDeadline(0)
	require.NotNil(t, deadline)
	assert.Equal(t, earlier, *deadline)
}

func TestResolvedDeadlineConstraintDateIsEndOfLocalDay(t *testing.T) {
	c := newTestCapture("renew passport")
	date := ts("2025-10-26T00:00:00Z")
	c.ConstraintDate = &date

	// UTC+2: end of the local day is 23:59 local, 21:59Z.
	deadline := c.ResolvedDeadline(2 * time.Hour)
	require.NotNil(t, deadline)
	assert.Equal(t, ts("2025-10-26T21:59:00Z"), *deadline)
}

func TestResolvedDeadlineNilWithoutConstraints(t *testing.T) {
	assert.Nil(t, newTestCapture("whenever").ResolvedDeadline(0))
}

func TestHardDeadlineIgnoresStartTarget(t *testing.T) {
	c := newTestCapture("call mom")
	target := ts("2025-10-25T14:00:00Z")
	c.ConstraintType = ConstraintStartTime
	c.StartTargetAt = &target

	// The start target feeds priority pressure but never bounds the end.
	require.NotNil(t, c.ResolvedDeadline(0))
	assert.Nil(t, c.HardDeadline(0))

	deadline := ts("2025-10-25T18:00:00Z")
	c.DeadlineAt = &deadline
	hard := c.HardDeadline(0)
	require.NotNil(t, hard)
	assert.Equal(t, deadline, *hard)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := newTestCapture("demo prep")
	planID := uuid.New()
	c.MarkScheduled(ts("2025-10-25T14:00:00Z"), ts("2025-10-25T15:00:00Z"), "evt-1", `"etag-1"`, planID)

	snapshot := c.Snapshot()
	c.ClearPlacement()
	assert.Equal(t, StatusPending, c.Status)
	assert.Empty(t, c.CalendarEventID)

	c.ApplySnapshot(snapshot)
	assert.Equal(t, StatusScheduled, c.Status)
	require.NotNil(t, c.PlannedStart)
	assert.Equal(t, ts("2025-10-25T14:00:00Z"), *c.PlannedStart)
	assert.Equal(t, "evt-1", c.CalendarEventID)
	assert.Equal(t, `"etag-1"`, c.CalendarEventETag)
	require.NotNil(t, c.PlanID)
	assert.Equal(t, planID, *c.PlanID)
}

func TestSnapshotIsDetached(t *testing.T) {
	c := newTestCapture("call bank")
	c.MarkScheduled(ts("2025-10-25T14:00:00Z"), ts("2025-10-25T15:00:00Z"), "evt-1", "", uuid.New())

	snapshot := c.Snapshot()
	c.PlannedStart = nil

	require.NotNil(t, snapshot.PlannedStart)
	assert.Equal(t, ts("2025-10-25T14:00:00Z"), *snapshot.PlannedStart)
}

func TestMarkCompletedClearsPlacement(t *testing.T) {
	c := newTestCapture("pay invoice")
	c.MarkScheduled(ts("2025-10-25T14:00:00Z"), ts("2025-10-25T15:00:00Z"), "evt-1", "", uuid.New())

	c.MarkCompleted()
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Nil(t, c.PlannedStart)
	assert.Empty(t, c.CalendarEventID)
}

func TestIsFrozen(t *testing.T) {
	now := ts("2025-10-25T12:00:00Z")
	c := newTestCapture("focus block")

	assert.False(t, c.IsFrozen(now))

	until := now.Add(time.Hour)
	c.FreezeUntil = &until
	assert.True(t, c.IsFrozen(now))
	assert.False(t, c.IsFrozen(now.Add(2*time.Hour)))
}
