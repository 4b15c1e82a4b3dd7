// Package commands holds the write-side use cases of the scheduling context.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	"github.com/diaguru/diaguru/internal/scheduling/application/services"
	"github.com/diaguru/diaguru/internal/scheduling/domain"
	sharedDomain "github.com/diaguru/diaguru/internal/shared/domain"
	"github.com/diaguru/diaguru/internal/shared/infrastructure/eventbus"
	"github.com/diaguru/diaguru/internal/shared/infrastructure/locking"
)

// Intent selects what the caller wants done with the capture.
type Intent string

const (
	IntentSchedule   Intent = "schedule"
	IntentReschedule Intent = "reschedule"
	IntentComplete   Intent = "complete"
)

// lockTTL bounds one scheduling run; a crashed run frees itself.
const lockTTL = 30 * time.Second

// ScheduleCaptureCommand requests placement of one capture.
type ScheduleCaptureCommand struct {
	CaptureID        uuid.UUID
	UserID           uuid.UUID
	Intent           Intent
	UTCOffsetMinutes int
	// Preferred is an explicit user slot. It wins over anything the planner
	// would derive.
	Preferred *domain.Slot
	// AllowOverlap is the user's consent for the preferred slot to share time
	// with existing soft placements instead of displacing them.
	AllowOverlap bool
}

// ScheduleCaptureResult reports what one run did. Exactly one of Plan and
// Decision is set on success paths that mutate or defer; a completed capture
// has neither.
type ScheduleCaptureResult struct {
	Capture  *domain.Capture
	Plan     *domain.Plan
	Decision *services.Decision
}

// ScheduleCaptureHandler orchestrates one scheduling run end to end: lock,
// load, plan, place or preempt, mutate the calendar, journal, publish.
type ScheduleCaptureHandler struct {
	captures  domain.CaptureRepository
	plans     domain.PlanRepository
	chunks    domain.ChunkRepository
	gateway   calendarDomain.Gateway
	locker    locking.Locker
	publisher eventbus.Publisher
	planner   *services.Planner
	placer    *services.Placer
	resolver  *services.ConflictResolver
	decisions *services.DecisionBuilder
	weights   domain.PriorityWeights
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduleCaptureHandler wires the orchestrator.
func NewScheduleCaptureHandler(
	captures domain.CaptureRepository,
	plans domain.PlanRepository,
	chunks domain.ChunkRepository,
	gateway calendarDomain.Gateway,
	locker locking.Locker,
	publisher eventbus.Publisher,
	resolver *services.ConflictResolver,
	decisions *services.DecisionBuilder,
	weights domain.PriorityWeights,
	logger *slog.Logger,
) *ScheduleCaptureHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleCaptureHandler{
		captures:  captures,
		plans:     plans,
		chunks:    chunks,
		gateway:   gateway,
		locker:    locker,
		publisher: publisher,
		planner:   services.NewPlanner(),
		placer:    services.NewPlacer(),
		resolver:  resolver,
		decisions: decisions,
		weights:   weights,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock, for tests.
func (h *ScheduleCaptureHandler) WithClock(now func() time.Time) *ScheduleCaptureHandler {
	h.now = now
	return h
}

// Handle runs one scheduling request under the per-capture lock.
func (h *ScheduleCaptureHandler) Handle(ctx context.Context, cmd ScheduleCaptureCommand) (*ScheduleCaptureResult, error) {
	if cmd.UserID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	release, err := h.locker.Acquire(ctx, cmd.UserID, cmd.CaptureID, lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	capture, err := h.captures.FindByID(ctx, cmd.CaptureID)
	if err != nil {
		return nil, err
	}
	if capture == nil {
		return nil, domain.ErrCaptureNotFound
	}
	if capture.OwnerID != cmd.UserID {
		return nil, domain.ErrForbidden
	}

	switch cmd.Intent {
	case IntentComplete:
		return h.complete(ctx, cmd, capture)
	case IntentReschedule:
		return h.schedule(ctx, cmd, capture, true)
	default:
		return h.schedule(ctx, cmd, capture, false)
	}
}

// complete finishes the capture, removing its calendar footprint. Idempotent.
func (h *ScheduleCaptureHandler) complete(ctx context.Context, cmd ScheduleCaptureCommand, capture *domain.Capture) (*ScheduleCaptureResult, error) {
	if capture.Status == domain.StatusCompleted {
		return &ScheduleCaptureResult{Capture: capture}, nil
	}

	if capture.CalendarEventID != "" {
		if err := calendarDomain.DeleteWithRetry(ctx, h.gateway, cmd.UserID, capture.CalendarEventID, capture.CalendarEventETag); err != nil {
			return nil, err
		}
	}

	capture.MarkCompleted()
	if err := h.captures.Save(ctx, capture); err != nil {
		return nil, err
	}
	if err := h.chunks.DeleteForCapture(ctx, capture.ID()); err != nil {
		return nil, err
	}

	eventbus.PublishAll(ctx, h.publisher, []sharedDomain.DomainEvent{
		domain.NewCaptureCompleted(capture.ID()),
	}, h.logger)
	return &ScheduleCaptureResult{Capture: capture}, nil
}

func (h *ScheduleCaptureHandler) schedule(ctx context.Context, cmd ScheduleCaptureCommand, capture *domain.Capture, reschedule bool) (*ScheduleCaptureResult, error) {
	now := h.now()
	offset := time.Duration(cmd.UTCOffsetMinutes) * time.Minute
	oldStart := capture.PlannedStart

	// A reschedule vacates the existing placement first so its own event never
	// blocks the new search.
	if capture.Status == domain.StatusScheduled && capture.CalendarEventID != "" {
		if !reschedule && cmd.Preferred == nil {
			// Plain re-schedule of an already placed capture is a no-op.
			return &ScheduleCaptureResult{Capture: capture}, nil
		}
		if err := calendarDomain.DeleteWithRetry(ctx, h.gateway, cmd.UserID, capture.CalendarEventID, capture.CalendarEventETag); err != nil {
			return nil, err
		}
		capture.ClearPlacement()
		capture.BumpRescheduleCount()
		reschedule = true
	}

	events, err := h.gateway.ListEvents(ctx, cmd.UserID, now, now.AddDate(0, 0, domain.SearchHorizonDays))
	if err != nil {
		return nil, err
	}
	managed, err := h.managedCaptures(ctx, events, capture.ID())
	if err != nil {
		return nil, err
	}

	plan := h.planner.BuildPlan(capture, now, offset)
	if cmd.Preferred != nil {
		plan.Preferred = cmd.Preferred
		plan.PreferredByUser = true
	}

	window := domain.NewWorkingWindow(offset)
	busy := domain.NewBusySet(eventSlots(events, capture.ID()), time.Duration(domain.StandardBufferMinutes)*time.Minute)
	finder := domain.NewSlotFinder(busy, window)

	slot, resolution, needsDecision, err := h.findPlacement(cmd, capture, plan, finder, events, managed, now, offset)
	if err != nil {
		return nil, err
	}
	if needsDecision {
		d := h.decisions.PreferredConflict(ctx, capture, *plan.Preferred, events, finder, offset)
		capture.Status = domain.StatusAwaitingConfirmation
		capture.Touch()
		if err := h.captures.Save(ctx, capture); err != nil {
			return nil, err
		}
		return &ScheduleCaptureResult{Capture: capture, Decision: d}, nil
	}

	return h.apply(ctx, cmd, capture, plan, *slot, resolution, reschedule, oldStart, now, offset)
}

// findPlacement picks the slot: preferred if feasible, preemption if
// justified, mode search otherwise. needsDecision means a user-preferred slot
// could not be honored and the user has to choose.
func (h *ScheduleCaptureHandler) findPlacement(
	cmd ScheduleCaptureCommand,
	capture *domain.Capture,
	plan *domain.SchedulingPlan,
	finder *domain.SlotFinder,
	events []calendarDomain.Event,
	managed map[string]*domain.Capture,
	now time.Time,
	offset time.Duration,
) (slot *domain.Slot, resolution *services.Resolution, needsDecision bool, err error) {
	// A preferred slot ending past the deadline is never usable: an explicit
	// user slot fails outright, a derived one falls back to mode search.
	if plan.Preferred != nil && plan.Deadline != nil && plan.Preferred.End.After(*plan.Deadline) {
		if plan.PreferredByUser {
			return nil, nil, false, h.exceedsDeadline(capture, plan, now)
		}
		plan.Preferred = nil
	}

	if plan.Preferred != nil {
		preferred := *plan.Preferred
		if finder.Window.Contains(preferred) && finder.Busy.IsFree(preferred) {
			return &preferred, nil, false, nil
		}

		resolution, err = h.resolver.Resolve(services.ResolveInput{
			Target:       capture,
			Plan:         plan,
			Preferred:    plan.Preferred,
			Events:       events,
			Captures:     managed,
			AllowOverlap: cmd.AllowOverlap,
			Now:          now,
			Offset:       offset,
		})
		if err != nil {
			return nil, nil, false, err
		}
		if resolution != nil {
			if plan.Deadline != nil && resolution.Slot.End.After(*plan.Deadline) {
				return nil, nil, false, h.exceedsDeadline(capture, plan, now)
			}
			return &resolution.Slot, resolution, false, nil
		}
		if plan.PreferredByUser {
			return nil, nil, true, nil
		}
		// A derived preferred slot falls back to plain mode search.
	}

	slot, err = h.placer.Place(capture, plan, finder, now)
	if err == nil {
		return slot, nil, false, nil
	}

	var noSlot *domain.NoSlotError
	if !errors.As(err, &noSlot) || plan.Mode == domain.PlanModeFlexible || plan.Deadline == nil {
		return nil, nil, false, err
	}

	resolution, rerr := h.resolver.Resolve(services.ResolveInput{
		Target:   capture,
		Plan:     plan,
		Events:   events,
		Captures: managed,
		Now:      now,
		Offset:   offset,
	})
	if rerr != nil {
		return nil, nil, false, rerr
	}
	if resolution == nil {
		return nil, nil, false, err
	}
	if resolution.Slot.End.After(*plan.Deadline) {
		return nil, nil, false, h.exceedsDeadline(capture, plan, now)
	}
	return &resolution.Slot, resolution, false, nil
}

func (h *ScheduleCaptureHandler) exceedsDeadline(capture *domain.Capture, plan *domain.SchedulingPlan, now time.Time) error {
	return &domain.NoSlotError{
		Reason:          domain.ErrSlotExceedsDeadline,
		CaptureID:       capture.ID(),
		Mode:            plan.Mode,
		DurationMinutes: capture.DurationMinutes(),
		Deadline:        plan.Deadline,
		ReferenceNow:    now,
	}
}

// apply performs every mutation of the run in the safe order: each displaced
// event is deleted remotely and its capture immediately parked pending with
// the unschedule journaled, then the target's event is created, then the
// displaced captures are relocated. An abort mid-run therefore never leaves a
// capture claiming a deleted event, and the journal of what did happen is
// persisted.
func (h *ScheduleCaptureHandler) apply(
	ctx context.Context,
	cmd ScheduleCaptureCommand,
	capture *domain.Capture,
	plan *domain.SchedulingPlan,
	slot domain.Slot,
	resolution *services.Resolution,
	reschedule bool,
	oldStart *time.Time,
	now time.Time,
	offset time.Duration,
) (*ScheduleCaptureResult, error) {
	run := domain.NewPlan(cmd.UserID)
	planID := run.ID()
	var domainEvents []sharedDomain.DomainEvent

	var moves []*services.Move
	overlapped := false
	if resolution != nil {
		moves = resolution.Moves
		overlapped = resolution.Overlapped
	}

	relocations := make(map[*services.Move]domain.PlacementSnapshot, len(moves))
	for _, move := range moves {
		if err := calendarDomain.DeleteWithRetry(ctx, h.gateway, cmd.UserID, move.Event.ID, move.Event.ETag); err != nil {
			h.abandonRun(ctx, run)
			return nil, err
		}
		cleared, err := h.parkDisplaced(ctx, run, move)
		if err != nil {
			h.abandonRun(ctx, run)
			return nil, err
		}
		if move.To == nil {
			domainEvents = append(domainEvents, domain.NewCaptureUnscheduled(move.Capture.ID(), planID, "preempted"))
		} else {
			relocations[move] = cleared
		}
	}

	created, err := h.createEvent(ctx, cmd.UserID, capture, slot, planID, now, offset)
	if err != nil {
		h.abandonRun(ctx, run)
		return nil, err
	}

	prev := capture.Snapshot()
	capture.MarkScheduled(slot.Start, slot.End, created.ID, created.ETag, planID)
	actionType := domain.ActionScheduled
	if reschedule {
		actionType = domain.ActionRescheduled
	}
	run.AppendAction(capture, actionType, prev, capture.Snapshot())
	if err := h.captures.Save(ctx, capture); err != nil {
		h.abandonRun(ctx, run)
		return nil, err
	}
	if err := h.chunks.ReplaceForCapture(ctx, capture.ID(), []domain.Chunk{{
		CaptureID:  capture.ID(),
		Start:      slot.Start,
		End:        slot.End,
		Overlapped: overlapped,
	}}); err != nil {
		h.abandonRun(ctx, run)
		return nil, err
	}

	if reschedule && oldStart != nil {
		domainEvents = append(domainEvents, domain.NewCaptureRescheduled(capture.ID(), planID, *oldStart, slot.Start, slot.End))
	} else {
		domainEvents = append(domainEvents, domain.NewCaptureScheduled(capture.ID(), planID, slot.Start, slot.End))
	}

	for _, move := range moves {
		if move.To == nil {
			continue
		}
		if err := h.relocateDisplaced(ctx, cmd.UserID, run, move, relocations[move], planID, now, offset); err != nil {
			h.abandonRun(ctx, run)
			return nil, err
		}
		domainEvents = append(domainEvents, domain.NewCaptureRescheduled(move.Capture.ID(), planID, move.From.Start, move.To.Start, move.To.End))
	}

	run.Finalize()
	if err := h.plans.Save(ctx, run); err != nil {
		return nil, err
	}

	eventbus.PublishAll(ctx, h.publisher, domainEvents, h.logger)
	h.logger.Info("scheduling run applied",
		"capture_id", capture.ID(),
		"plan_id", planID,
		"mode", plan.Mode,
		"start", slot.Start,
		"moves", len(moves))
	return &ScheduleCaptureResult{Capture: capture, Plan: run}, nil
}

// parkDisplaced takes a displaced capture out of its deleted placement right
// away: pending, noted, journaled, persisted. Relocation happens later, so an
// aborted run leaves the capture parked instead of pointing at a gone event.
func (h *ScheduleCaptureHandler) parkDisplaced(ctx context.Context, run *domain.Plan, move *services.Move) (domain.PlacementSnapshot, error) {
	displaced := move.Capture
	prev := displaced.Snapshot()
	displaced.BumpRescheduleCount()
	displaced.ClearPlacement()
	if move.To == nil {
		displaced.SchedulingNotes = "displaced without replacement"
	} else {
		displaced.SchedulingNotes = "displaced by a higher-priority capture"
	}

	cleared := displaced.Snapshot()
	run.AppendAction(displaced, domain.ActionUnscheduled, prev, cleared)
	if err := h.captures.Save(ctx, displaced); err != nil {
		return cleared, err
	}
	if err := h.chunks.DeleteForCapture(ctx, displaced.ID()); err != nil {
		return cleared, err
	}
	return cleared, nil
}

// relocateDisplaced places a parked capture into its cascade slot and journals
// the schedule half of the move.
func (h *ScheduleCaptureHandler) relocateDisplaced(
	ctx context.Context,
	userID uuid.UUID,
	run *domain.Plan,
	move *services.Move,
	cleared domain.PlacementSnapshot,
	planID uuid.UUID,
	now time.Time,
	offset time.Duration,
) error {
	displaced := move.Capture
	created, err := h.createEvent(ctx, userID, displaced, *move.To, planID, now, offset)
	if err != nil {
		displaced.SchedulingNotes = "displaced without replacement"
		displaced.Touch()
		if serr := h.captures.Save(ctx, displaced); serr != nil {
			h.logger.Error("saving parked capture failed", "capture_id", displaced.ID(), "error", serr)
		}
		return err
	}
	displaced.MarkScheduled(move.To.Start, move.To.End, created.ID, created.ETag, planID)
	run.AppendAction(displaced, domain.ActionScheduled, cleared, displaced.Snapshot())
	if err := h.captures.Save(ctx, displaced); err != nil {
		return err
	}
	return h.chunks.ReplaceForCapture(ctx, displaced.ID(), []domain.Chunk{{
		CaptureID: displaced.ID(),
		Start:     move.To.Start,
		End:       move.To.End,
	}})
}

// abandonRun persists whatever the aborted run already journaled, so parked
// captures keep an auditable trail.
func (h *ScheduleCaptureHandler) abandonRun(ctx context.Context, run *domain.Plan) {
	if len(run.Actions) == 0 {
		return
	}
	run.Finalize()
	if err := h.plans.Save(ctx, run); err != nil {
		h.logger.Error("saving aborted plan failed", "plan_id", run.ID(), "error", err)
	}
}

func (h *ScheduleCaptureHandler) createEvent(
	ctx context.Context,
	userID uuid.UUID,
	capture *domain.Capture,
	slot domain.Slot,
	planID uuid.UUID,
	now time.Time,
	offset time.Duration,
) (*calendarDomain.CreatedEvent, error) {
	created, err := h.gateway.CreateEvent(ctx, userID, calendarDomain.CreateEventInput{
		Summary:       capture.Content,
		Start:         slot.Start,
		End:           slot.End,
		CaptureID:     capture.ID(),
		ActionID:      uuid.New(),
		PlanID:        &planID,
		PriorityScore: domain.PriorityScore(capture, now, offset, h.weights),
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("%w: create returned no event", domain.ErrProviderError)
	}
	return created, nil
}

// managedCaptures resolves the captures behind managed events, skipping the
// target's own event.
func (h *ScheduleCaptureHandler) managedCaptures(ctx context.Context, events []calendarDomain.Event, selfID uuid.UUID) (map[string]*domain.Capture, error) {
	var ids []uuid.UUID
	byEvent := make(map[string]uuid.UUID)
	for _, e := range events {
		if !e.Managed() {
			continue
		}
		id, ok := e.CaptureID()
		if !ok || id == selfID {
			continue
		}
		byEvent[e.ID] = id
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return map[string]*domain.Capture{}, nil
	}

	captures, err := h.captures.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*domain.Capture, len(captures))
	for _, c := range captures {
		byID[c.ID()] = c
	}
	out := make(map[string]*domain.Capture, len(byEvent))
	for eventID, captureID := range byEvent {
		if c, ok := byID[captureID]; ok {
			out[eventID] = c
		}
	}
	return out, nil
}

// eventSlots converts events into busy intervals, skipping the target's own
// event so a vacated placement never blocks its successor.
func eventSlots(events []calendarDomain.Event, selfID uuid.UUID) []domain.Slot {
	slots := make([]domain.Slot, 0, len(events))
	for _, e := range events {
		if id, ok := e.CaptureID(); ok && id == selfID {
			continue
		}
		slots = append(slots, domain.Slot{Start: e.Start, End: e.End})
	}
	return slots
}
