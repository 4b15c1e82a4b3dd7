package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	"github.com/diaguru/diaguru/internal/scheduling/domain"
	sharedDomain "github.com/diaguru/diaguru/internal/shared/domain"
	"github.com/diaguru/diaguru/internal/shared/infrastructure/eventbus"
)

// UndoPlanCommand reverts every action of one plan.
type UndoPlanCommand struct {
	PlanID           uuid.UUID
	UserID           uuid.UUID
	UTCOffsetMinutes int
}

// UndoPlanResult lists the captures whose placement was restored.
type UndoPlanResult struct {
	Plan             *domain.Plan
	RevertedCaptures []*domain.Capture
}

// UndoPlanHandler reverses a plan: actions are undone last-first, current
// events deleted, previous placements recreated on the calendar.
type UndoPlanHandler struct {
	captures  domain.CaptureRepository
	plans     domain.PlanRepository
	chunks    domain.ChunkRepository
	gateway   calendarDomain.Gateway
	publisher eventbus.Publisher
	weights   domain.PriorityWeights
	logger    *slog.Logger
	now       func() time.Time
}

// NewUndoPlanHandler wires the undo use case.
func NewUndoPlanHandler(
	captures domain.CaptureRepository,
	plans domain.PlanRepository,
	chunks domain.ChunkRepository,
	gateway calendarDomain.Gateway,
	publisher eventbus.Publisher,
	weights domain.PriorityWeights,
	logger *slog.Logger,
) *UndoPlanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UndoPlanHandler{
		captures:  captures,
		plans:     plans,
		chunks:    chunks,
		gateway:   gateway,
		publisher: publisher,
		weights:   weights,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock, for tests.
func (h *UndoPlanHandler) WithClock(now func() time.Time) *UndoPlanHandler {
	h.now = now
	return h
}

// Handle reverts the plan. Reverting twice fails with plan_already_undone.
func (h *UndoPlanHandler) Handle(ctx context.Context, cmd UndoPlanCommand) (*UndoPlanResult, error) {
	if cmd.UserID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	plan, err := h.plans.FindByID(ctx, cmd.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	if plan.OwnerID != cmd.UserID {
		return nil, domain.ErrForbidden
	}
	if plan.IsUndone() {
		return nil, domain.ErrPlanAlreadyUndone
	}

	now := h.now()
	offset := time.Duration(cmd.UTCOffsetMinutes) * time.Minute
	var reverted []*domain.Capture
	var domainEvents []sharedDomain.DomainEvent

	// Last action first, so a capture touched twice in one plan ends at its
	// earliest recorded state.
	for i := len(plan.Actions) - 1; i >= 0; i-- {
		action := plan.Actions[i]
		capture, err := h.captures.FindByID(ctx, action.CaptureID)
		if err != nil {
			return nil, err
		}
		if capture == nil {
			h.logger.Warn("undo skipped a deleted capture", "capture_id", action.CaptureID)
			continue
		}
		// Completion after the plan wins over the undo.
		if capture.Status == domain.StatusCompleted {
			continue
		}

		if err := h.revertAction(ctx, cmd.UserID, capture, action, now, offset); err != nil {
			return nil, err
		}
		reverted = append(reverted, capture)
		if prev := action.Prev.PlannedStart; prev != nil && action.Prev.Status == domain.StatusScheduled {
			end := prev.Add(capture.Duration())
			if action.Prev.PlannedEnd != nil {
				end = *action.Prev.PlannedEnd
			}
			domainEvents = append(domainEvents, domain.NewCaptureRescheduled(capture.ID(), plan.ID(), now, *prev, end))
		} else {
			domainEvents = append(domainEvents, domain.NewCaptureUnscheduled(capture.ID(), plan.ID(), "undo"))
		}
	}

	if err := plan.MarkUndone(cmd.UserID); err != nil {
		return nil, err
	}
	if err := h.plans.Save(ctx, plan); err != nil {
		return nil, err
	}

	domainEvents = append(domainEvents, plan.DomainEvents()...)
	plan.ClearDomainEvents()
	eventbus.PublishAll(ctx, h.publisher, domainEvents, h.logger)

	h.logger.Info("plan undone", "plan_id", plan.ID(), "reverted", len(reverted))
	return &UndoPlanResult{Plan: plan, RevertedCaptures: reverted}, nil
}

// revertAction restores one capture to its pre-plan placement, adjusting both
// the calendar and local state.
func (h *UndoPlanHandler) revertAction(
	ctx context.Context,
	userID uuid.UUID,
	capture *domain.Capture,
	action *domain.PlanAction,
	now time.Time,
	offset time.Duration,
) error {
	// Drop the event the plan created, if any still exists.
	if capture.CalendarEventID != "" && capture.CalendarEventID != action.Prev.CalendarEventID {
		if err := calendarDomain.DeleteWithRetry(ctx, h.gateway, userID, capture.CalendarEventID, capture.CalendarEventETag); err != nil {
			return err
		}
	}

	restored := action.Prev
	if restored.Status == domain.StatusScheduled && restored.PlannedStart != nil && restored.PlannedEnd != nil {
		created, err := h.gateway.CreateEvent(ctx, userID, calendarDomain.CreateEventInput{
			Summary:       capture.Content,
			Start:         *restored.PlannedStart,
			End:           *restored.PlannedEnd,
			CaptureID:     capture.ID(),
			ActionID:      action.ID,
			PlanID:        restored.PlanID,
			PriorityScore: domain.PriorityScore(capture, now, offset, h.weights),
		})
		if err != nil {
			return err
		}
		restored.CalendarEventID = created.ID
		restored.CalendarEventETag = created.ETag
	} else {
		restored.CalendarEventID = ""
		restored.CalendarEventETag = ""
	}

	capture.ApplySnapshot(restored)
	// The displacement counter only unwinds for moves; the initial scheduling
	// of a capture never bumped it.
	if action.ActionType != domain.ActionScheduled && capture.RescheduleCount > 0 {
		capture.RescheduleCount--
	}
	if err := h.captures.Save(ctx, capture); err != nil {
		return err
	}

	if restored.Status == domain.StatusScheduled && restored.PlannedStart != nil && restored.PlannedEnd != nil {
		return h.chunks.ReplaceForCapture(ctx, capture.ID(), []domain.Chunk{{
			CaptureID: capture.ID(),
			Start:     *restored.PlannedStart,
			End:       *restored.PlannedEnd,
		}})
	}
	return h.chunks.DeleteForCapture(ctx, capture.ID())
}
