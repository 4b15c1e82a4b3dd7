package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// Decision codes surfaced when scheduling needs user input instead of failing.
const (
	DecisionPreferredConflict = "preferred_conflict"
	DecisionNoSlot            = "no_slot"
)

// Advisor actions. The advisor picks one; anything else is discarded.
const (
	AdviceSuggestSlot = "suggest_slot"
	AdviceAskOverlap  = "ask_overlap"
	AdviceDefer       = "defer"
)

// ConflictInfo is one event standing in the way of a requested slot, as shown
// to the user. CaptureID is set only for events this system manages.
type ConflictInfo struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	DiaGuru   bool      `json:"diaGuru"`
	CaptureID string    `json:"captureId,omitempty"`
}

// Decision asks the user to choose instead of silently placing the capture
// somewhere they did not want. Suggestion is always validated locally before
// it reaches the user; the advisor shapes the message and may propose an
// action, never an unverified time.
type Decision struct {
	Code       string         `json:"code"`
	CaptureID  string         `json:"capture_id"`
	Message    string         `json:"message"`
	Action     string         `json:"action,omitempty"`
	Preferred  *domain.Slot   `json:"preferred,omitempty"`
	Conflicts  []ConflictInfo `json:"conflicts,omitempty"`
	Suggestion *domain.Slot   `json:"suggestion,omitempty"`
}

// AdviceInput describes the situation the advisor may comment on.
type AdviceInput struct {
	CaptureContent string
	Code           string
	Preferred      *domain.Slot
	Conflicts      []ConflictInfo
	Suggestion     *domain.Slot
	Offset         time.Duration
}

// Advice is the advisor's structured reply: one action, a message, and an
// optional slot that the caller re-validates before trusting.
type Advice struct {
	Action  string       `json:"action"`
	Message string       `json:"message"`
	Slot    *domain.Slot `json:"slot,omitempty"`
}

// Advisor optionally shapes a decision for the user. Implementations must be
// safe to skip; the caller always has a usable default.
type Advisor interface {
	Advise(ctx context.Context, in AdviceInput) (Advice, error)
}

// NoopAdvisor keeps the locally built decision.
type NoopAdvisor struct{}

// Advise returns the zero advice, meaning no rewrite.
func (NoopAdvisor) Advise(ctx context.Context, in AdviceInput) (Advice, error) {
	return Advice{}, nil
}

// DecisionBuilder assembles decisions with a locally computed, verified
// suggestion slot.
type DecisionBuilder struct {
	advisor Advisor
	logger  *slog.Logger
}

// NewDecisionBuilder creates a decision builder.
func NewDecisionBuilder(advisor Advisor, logger *slog.Logger) *DecisionBuilder {
	if advisor == nil {
		advisor = NoopAdvisor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionBuilder{advisor: advisor, logger: logger}
}

// PreferredConflict builds the decision for a user-chosen slot that is taken
// and not worth preempting: the echoed request, the events in the way, and the
// next free slot after the preferred one (nil when the horizon is exhausted).
func (b *DecisionBuilder) PreferredConflict(
	ctx context.Context,
	c *domain.Capture,
	preferred domain.Slot,
	events []calendarDomain.Event,
	finder *domain.SlotFinder,
	offset time.Duration,
) *Decision {
	suggestion := finder.FindFirstFree(c.Duration(), preferred.End)

	message := fmt.Sprintf("The slot %s is taken and the existing events are not worth moving.",
		formatSlot(preferred, offset))
	if suggestion != nil {
		message += fmt.Sprintf(" The next free slot is %s.", formatSlot(*suggestion, offset))
	}

	decision := &Decision{
		Code:       DecisionPreferredConflict,
		CaptureID:  c.ID().String(),
		Message:    message,
		Preferred:  &preferred,
		Conflicts:  conflictInfos(preferred, events),
		Suggestion: suggestion,
	}
	if suggestion != nil {
		decision.Action = AdviceSuggestSlot
	}
	b.consult(ctx, c, decision, finder, offset)
	return decision
}

// conflictInfos lists the events whose buffer-inflated intervals intersect the
// requested slot.
func conflictInfos(preferred domain.Slot, events []calendarDomain.Event) []ConflictInfo {
	buffer := time.Duration(domain.StandardBufferMinutes) * time.Minute
	var out []ConflictInfo
	for _, e := range events {
		inflated := domain.Slot{Start: e.Start.Add(-buffer), End: e.End.Add(buffer)}
		if !inflated.Overlaps(preferred) {
			continue
		}
		info := ConflictInfo{
			ID:      e.ID,
			Summary: e.Summary,
			Start:   e.Start,
			End:     e.End,
			DiaGuru: e.Managed(),
		}
		if id, ok := e.CaptureID(); ok {
			info.CaptureID = id.String()
		}
		out = append(out, info)
	}
	return out
}

// consult lets the advisor shape the decision. Failures keep the default; a
// proposed slot is adopted only after it passes local validation.
func (b *DecisionBuilder) consult(
	ctx context.Context,
	c *domain.Capture,
	d *Decision,
	finder *domain.SlotFinder,
	offset time.Duration,
) {
	advice, err := b.advisor.Advise(ctx, AdviceInput{
		CaptureContent: c.Content,
		Code:           d.Code,
		Preferred:      d.Preferred,
		Conflicts:      d.Conflicts,
		Suggestion:     d.Suggestion,
		Offset:         offset,
	})
	if err != nil {
		b.logger.Warn("advisor unavailable, keeping default message", "error", err)
		return
	}
	if advice.Message != "" {
		d.Message = advice.Message
	}
	switch advice.Action {
	case AdviceSuggestSlot, AdviceAskOverlap, AdviceDefer:
		d.Action = advice.Action
	}
	if advice.Slot != nil && b.slotAcceptable(*advice.Slot, finder) {
		d.Suggestion = advice.Slot
	}
}

// slotAcceptable re-validates an advisor-proposed slot: well formed, inside
// the working window, and free on the current busy picture.
func (b *DecisionBuilder) slotAcceptable(slot domain.Slot, finder *domain.SlotFinder) bool {
	if !slot.End.After(slot.Start) {
		return false
	}
	return finder.Window.Contains(slot) && finder.Busy.IsFree(slot)
}

func formatSlot(s domain.Slot, offset time.Duration) string {
	start := s.Start.Add(offset).UTC()
	end := s.End.Add(offset).UTC()
	return fmt.Sprintf("%s-%s", start.Format("Mon 15:04"), end.Format("15:04"))
}
