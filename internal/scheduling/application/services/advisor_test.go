package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// stubAdvisor returns a canned advice, or an error.
type stubAdvisor struct {
	advice Advice
	err    error
}

func (s stubAdvisor) Advise(ctx context.Context, in AdviceInput) (Advice, error) {
	return s.advice, s.err
}

func conflictFinder(busy ...domain.Slot) *domain.SlotFinder {
	set := domain.NewBusySet(busy, domain.StandardBufferMinutes*time.Minute)
	return domain.NewSlotFinder(set, domain.NewWorkingWindow(0))
}

func TestPreferredConflictListsBlockingEvents(t *testing.T) {
	c := newCapture("client demo")
	c.EstimatedMinutes = 60
	preferred := domain.Slot{Start: ts("2025-10-25T14:00:00Z"), End: ts("2025-10-25T15:00:00Z")}
	events := []calendarDomain.Event{
		{ID: "ext-1", Summary: "dentist",
			Start: ts("2025-10-25T14:00:00Z"), End: ts("2025-10-25T15:00:00Z")},
		// Ten minutes past the preferred end, inside the buffer.
		{ID: "mng-1", Summary: "inbox zero",
			Start: ts("2025-10-25T15:10:00Z"), End: ts("2025-10-25T15:40:00Z"),
			Private: map[string]string{
				calendarDomain.PropManaged:   "true",
				calendarDomain.PropCaptureID: "5f2c1e0a-3a7e-4d21-9f5a-8f4f2b6c1d2e",
			}},
		{ID: "far-1", Summary: "evening run",
			Start: ts("2025-10-25T18:00:00Z"), End: ts("2025-10-25T19:00:00Z")},
	}

	d := NewDecisionBuilder(nil, nil).PreferredConflict(
		context.Background(), c, preferred, events,
		conflictFinder(domain.Slot{Start: events[0].Start, End: events[0].End}), 0)

	require.NotNil(t, d.Preferred)
	assert.Equal(t, preferred, *d.Preferred)

	require.Len(t, d.Conflicts, 2)
	assert.Equal(t, "ext-1", d.Conflicts[0].ID)
	assert.False(t, d.Conflicts[0].DiaGuru)
	assert.Empty(t, d.Conflicts[0].CaptureID)
	assert.Equal(t, "mng-1", d.Conflicts[1].ID)
	assert.True(t, d.Conflicts[1].DiaGuru)
	assert.Equal(t, "5f2c1e0a-3a7e-4d21-9f5a-8f4f2b6c1d2e", d.Conflicts[1].CaptureID)

	require.NotNil(t, d.Suggestion)
	assert.Equal(t, AdviceSuggestSlot, d.Action)
}

func TestAdvisorFailureKeepsDefaultDecision(t *testing.T) {
	c := newCapture("client demo")
	c.EstimatedMinutes = 60
	preferred := domain.Slot{Start: ts("2025-10-25T14:00:00Z"), End: ts("2025-10-25T15:00:00Z")}

	d := NewDecisionBuilder(stubAdvisor{err: errors.New("offline")}, nil).PreferredConflict(
		context.Background(), c, preferred, nil, conflictFinder(), 0)

	assert.NotEmpty(t, d.Message)
	assert.Equal(t, AdviceSuggestSlot, d.Action)
}

func TestAdvisorMessageAndActionAdopted(t *testing.T) {
	c := newCapture("client demo")
	c.EstimatedMinutes = 60
	preferred := domain.Slot{Start: ts("2025-10-25T14:00:00Z"), End: ts("2025-10-25T15:00:00Z")}

	d := NewDecisionBuilder(stubAdvisor{advice: Advice{
		Action:  AdviceAskOverlap,
		Message: "That hour is shared with a flexible task - overlap instead?",
	}}, nil).PreferredConflict(context.Background(), c, preferred, nil, conflictFinder(), 0)

	assert.Equal(t, "That hour is shared with a flexible task - overlap instead?", d.Message)
	assert.Equal(t, AdviceAskOverlap, d.Action)
}

func TestAdvisorUnknownActionIgnored(t *testing.T) {
	c := newCapture("client demo")
	c.EstimatedMinutes = 60
	preferred := domain.Slot{Start: ts("2025-10-25T14:00:00Z"), End: ts("2025-10-25T15:00:00Z")}

	d := NewDecisionBuilder(stubAdvisor{advice: Advice{Action: "reschedule_everything"}}, nil).
		PreferredConflict(context.Background(), c, preferred, nil, conflictFinder(), 0)

	assert.Equal(t, AdviceSuggestSlot, d.Action)
}

func TestAdvisorSlotAdoptedOnlyAfterLocalValidation(t *testing.T) {
	c := newCapture("client demo")
	c.EstimatedMinutes = 60
	preferred := domain.Slot{Start: ts("2025-10-25T14:00:00Z"), End: ts("2025-10-25T15:00:00Z")}
	busy := domain.Slot{Start: ts("2025-10-25T16:00:00Z"), End: ts("2025-10-25T17:00:00Z")}

	good := &domain.Slot{Start: ts("2025-10-25T18:00:00Z"), End: ts("2025-10-25T19:00:00Z")}
	d := NewDecisionBuilder(stubAdvisor{advice: Advice{Action: AdviceSuggestSlot, Slot: good}}, nil).
		PreferredConflict(context.Background(), c, preferred, nil, conflictFinder(busy), 0)
	require.NotNil(t, d.Suggestion)
	assert.Equal(t, *good, *d.Suggestion)

	// A slot colliding with the busy picture is discarded; the local
	// suggestion stands.
	taken := &domain.Slot{Start: ts("2025-10-25T16:00:00Z"), End: ts("2025-10-25T17:00:00Z")}
	d = NewDecisionBuilder(stubAdvisor{advice: Advice{Action: AdviceSuggestSlot, Slot: taken}}, nil).
		PreferredConflict(context.Background(), c, preferred, nil, conflictFinder(busy), 0)
	require.NotNil(t, d.Suggestion)
	assert.NotEqual(t, *taken, *d.Suggestion)

	// Outside the working band.
	night := &domain.Slot{Start: ts("2025-10-25T23:00:00Z"), End: ts("2025-10-26T00:00:00Z")}
	d = NewDecisionBuilder(stubAdvisor{advice: Advice{Action: AdviceSuggestSlot, Slot: night}}, nil).
		PreferredConflict(context.Background(), c, preferred, nil, conflictFinder(), 0)
	if d.Suggestion != nil {
		assert.NotEqual(t, *night, *d.Suggestion)
	}

	// Malformed.
	inverted := &domain.Slot{Start: ts("2025-10-25T19:00:00Z"), End: ts("2025-10-25T18:00:00Z")}
	d = NewDecisionBuilder(stubAdvisor{advice: Advice{Action: AdviceSuggestSlot, Slot: inverted}}, nil).
		PreferredConflict(context.Background(), c, preferred, nil, conflictFinder(), 0)
	if d.Suggestion != nil {
		assert.NotEqual(t, *inverted, *d.Suggestion)
	}
}

func TestParseAdviceHandlesFencesAndSlot(t *testing.T) {
	advice, err := parseAdvice("```json\n{\"action\":\"suggest_slot\",\"message\":\"Try later.\",\"slot\":{\"start\":\"2025-10-25T18:00:00Z\",\"end\":\"2025-10-25T19:00:00Z\"}}\n```")
	require.NoError(t, err)
	assert.Equal(t, AdviceSuggestSlot, advice.Action)
	assert.Equal(t, "Try later.", advice.Message)
	require.NotNil(t, advice.Slot)
	assert.Equal(t, ts("2025-10-25T18:00:00Z"), advice.Slot.Start)

	advice, err = parseAdvice(`{"action":"defer","message":"Leave it for now."}`)
	require.NoError(t, err)
	assert.Equal(t, AdviceDefer, advice.Action)
	assert.Nil(t, advice.Slot)

	_, err = parseAdvice("not json")
	assert.Error(t, err)
}
