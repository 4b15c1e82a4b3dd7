package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestCapture(content string) *Capture {
	return NewCapture(uuid.New(), content)
}

func TestPriorityScoreDeadlinePressure(t *testing.T) {
	now := ts("2025-10-25T12:00:00Z")
	weights := DefaultPriorityWeights()

	relaxed := newTestCapture("write report")
	relaxed.EstimatedMinutes = 30
	deadline := ts("2025-10-27T12:00:00Z")
	relaxed.ConstraintType = ConstraintDeadlineTime
	relaxed.DeadlineAt = &deadline

	urgent := newTestCapture("file taxes")
	urgent.EstimatedMinutes = 30
	soon := ts("2025-10-25T14:00:00Z")
	urgent.ConstraintType = ConstraintDeadlineTime
	urgent.DeadlineAt = &soon

	assert.Greater(t,
		PriorityScore(urgent, now, 0, weights),
		PriorityScore(relaxed, now, 0, weights))
}

func TestPriorityScoreDeadlineCapAndSoftStart(t *testing.T) {
	now := ts("2025-10-25T12:00:00Z")
	weights := PriorityWeights{Deadline: 1}

	hard := newTestCapture("submit form")
	hard.EstimatedMinutes = 30
	deadline := ts("2025-10-25T12:36:00Z") // slack below the floor
	hard.ConstraintType = ConstraintDeadlineTime
	hard.DeadlineAt = &deadline

	assert.InDelta(t, 10.0, PriorityScore(hard, now, 0, weights), 0.001)

	soft := newTestCapture("submit form")
	soft.EstimatedMinutes = 30
	soft.ConstraintType = ConstraintDeadlineTime
	soft.DeadlineAt = &deadline
	soft.IsSoftStart = true

	assert.InDelta(t, 5.0, PriorityScore(soft, now, 0, weights), 0.001)
}

func TestPriorityScoreWindowApproachRamp(t *testing.T) {
	now := ts("2025-10-25T12:00:00Z")
	weights := PriorityWeights{Window: 1}

	far := newTestCapture("gym")
	farStart := ts("2025-10-25T20:00:00Z")
	far.WindowStart = &farStart

	near := newTestCapture("gym")
	nearStart := ts("2025-10-25T13:00:00Z")
	near.WindowStart = &nearStart

	open := newTestCapture("gym")
	openStart := ts("2025-10-25T11:00:00Z")
	open.WindowStart = &openStart

	// Clear the window-end deadline influence by zeroing all other weights.
	farScore := PriorityScore(far, now, 0, weights)
	nearScore := PriorityScore(near, now, 0, weights)
	openScore := PriorityScore(open, now, 0, weights)

	assert.Equal(t, 0.0, farScore)
	assert.InDelta(t, 1-1.0/6, nearScore, 0.001)
	assert.Equal(t, 1.0, openScore)
}

func TestPriorityScoreImportanceFallback(t *testing.T) {
	now := ts("2025-10-25T12:00:00Z")
	weights := PriorityWeights{Importance: 3}

	fine := newTestCapture("review pr")
	fine.Urgency = 5
	fine.Impact = 5

	coarse := newTestCapture("review pr")
	coarse.Importance = 3

	assert.InDelta(t, 3.0, PriorityScore(fine, now, 0, weights), 0.001)
	assert.InDelta(t, 3.0, PriorityScore(coarse, now, 0, weights), 0.001)
}

func TestPriorityScoreDeterministic(t *testing.T) {
	now := ts("2025-10-25T12:00:00Z")
	weights := DefaultPriorityWeights()

	c := newTestCapture("same input")
	c.Urgency = 4
	c.Impact = 2
	c.EstimatedMinutes = 45

	assert.Equal(t,
		PriorityScore(c, now, 0, weights),
		PriorityScore(c, now, 0, weights))
}

func TestRigidityScoreOrdering(t *testing.T) {
	now := ts("2025-10-25T12:00:00Z")

	loose := newTestCapture("someday task")

	rigid := newTestCapture("board meeting")
	rigid.CannotOverlap = true
	rigid.StartFlexibility = StartHard
	rigid.DurationFlexibility = DurationFixed
	rigid.ReschedulePenalty = 3
	rigid.Blocking = true
	deadline := ts("2025-10-25T16:00:00Z")
	rigid.ConstraintType = ConstraintDeadlineTime
	rigid.DeadlineAt = &deadline

	assert.Greater(t, RigidityScore(rigid, now, 0), RigidityScore(loose, now, 0))
}

func TestRescheduleCostGrowsWithDisplacement(t *testing.T) {
	now := ts("2025-10-25T12:00:00Z")
	c := newTestCapture("standup")
	c.EstimatedMinutes = 30

	small := RescheduleCost(c, now, 0, 15)
	large := RescheduleCost(c, now, 0, 120)

	assert.Greater(t, large, small)
	// Negative displacement is priced by magnitude.
	assert.Equal(t, RescheduleCost(c, now, 0, -60), RescheduleCost(c, now, 0, 60))
}
