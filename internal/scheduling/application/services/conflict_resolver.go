package services

import (
	"log/slog"
	"sort"
	"time"

	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// Preemption tuning. The base threshold keeps low-pressure captures from ever
// displacing anything; the per-move penalty and the per-capture reschedule
// cost make each additional displacement harder to justify.
const (
	preemptBaseThreshold    = 12.0
	preemptMovePenalty      = 4.0
	preemptMinGainPerMinute = 0.08
	overlapSoftCostRate     = 0.03

	maxMovedCaptures  = 5
	maxMovedMinutes   = 240
	maxSubsetSize     = 4
	maxSubsetsPerSize = 64

	// StabilityWindow protects placements about to start. Only deadline mode
	// may move an event starting this soon.
	StabilityWindow = 30 * time.Minute
)

// Move is one displacement inside a resolution. A nil To means the capture
// lost its placement and returns to pending.
type Move struct {
	Capture *domain.Capture
	Event   calendarDomain.Event
	From    domain.Slot
	To      *domain.Slot
}

// Resolution is an accepted placement: where the target goes and every
// displacement required to make that true, in apply order. Overlapped marks a
// consented overlap kept in place instead of being displaced.
type Resolution struct {
	Slot       domain.Slot
	Moves      []*Move
	Compressed bool
	Overlapped bool
}

// ResolveInput is everything the resolver needs for one attempt. Captures maps
// calendar event IDs to their managed captures; events absent from the map are
// external and untouchable. AllowOverlap carries the user's explicit consent
// to share time with existing events.
type ResolveInput struct {
	Target       *domain.Capture
	Plan         *domain.SchedulingPlan
	Preferred    *domain.Slot
	Events       []calendarDomain.Event
	Captures     map[string]*domain.Capture
	AllowOverlap bool
	Now          time.Time
	Offset       time.Duration
}

// ConflictResolver decides whether a capture may displace existing placements
// and, when it may, computes the minimal set of moves.
type ConflictResolver struct {
	weights domain.PriorityWeights
	logger  *slog.Logger
}

// NewConflictResolver creates a resolver with the given priority weights.
func NewConflictResolver(weights domain.PriorityWeights, logger *slog.Logger) *ConflictResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConflictResolver{weights: weights, logger: logger}
}

// Resolve attempts to settle a contested placement. A nil resolution with a
// nil error means the attempt was considered and declined; the caller falls
// back.
func (r *ConflictResolver) Resolve(in ResolveInput) (*Resolution, error) {
	if in.Preferred != nil {
		return r.resolvePreferred(in)
	}
	if in.Plan.Mode != domain.PlanModeFlexible && in.Plan.Deadline != nil {
		return r.resolveBeforeDeadline(in)
	}
	return nil, nil
}

// resolvePreferred settles a specific requested slot: it is free, it overlaps
// with consent, or the events blocking it are displaced.
func (r *ConflictResolver) resolvePreferred(in ResolveInput) (*Resolution, error) {
	slot := *in.Preferred
	window := domain.NewWorkingWindow(in.Offset)
	if !window.Contains(slot) {
		return nil, nil
	}

	// Conflicts are detected against buffer-inflated intervals, so an event
	// adjacent within the buffer blocks the slot just like a direct overlap.
	buffer := time.Duration(domain.StandardBufferMinutes) * time.Minute
	var blocking []calendarDomain.Event
	for _, e := range in.Events {
		inflated := domain.Slot{Start: e.Start.Add(-buffer), End: e.End.Add(buffer)}
		if inflated.Overlaps(slot) {
			blocking = append(blocking, e)
		}
	}
	if len(blocking) == 0 {
		return &Resolution{Slot: slot}, nil
	}

	// Explicit consent to overlap holds only when every blocking event is a
	// managed soft capture and the target itself tolerates sharing. Any
	// external event or cannot_overlap side downgrades the consent entirely.
	if in.AllowOverlap && r.overlapHonored(in, blocking) {
		return &Resolution{Slot: slot, Overlapped: true}, nil
	}

	if in.Plan.Mode == domain.PlanModeFlexible {
		return nil, nil
	}
	if len(blocking) > maxSubsetSize {
		return nil, nil
	}

	subset, ok := r.eligibleSubset(in, blocking)
	if !ok {
		return nil, nil
	}
	return r.evaluate(in, slot, subset, false)
}

// overlapHonored reports whether consented overlap may stand: the target can
// overlap, and every blocking event belongs to a managed capture that can too.
func (r *ConflictResolver) overlapHonored(in ResolveInput, blocking []calendarDomain.Event) bool {
	if in.Target == nil || in.Target.CannotOverlap {
		return false
	}
	for _, e := range blocking {
		cap, managed := in.Captures[e.ID]
		if !managed || cap.CannotOverlap {
			return false
		}
	}
	return true
}

// resolveBeforeDeadline searches for any subset of movable events whose
// removal frees a slot before the deadline. Subsets grow breadth-first, so the
// cheapest viable displacement wins; the compressed buffer is a second pass.
func (r *ConflictResolver) resolveBeforeDeadline(in ResolveInput) (*Resolution, error) {
	deadline := *in.Plan.Deadline
	startFrom := in.Now.Add(ScheduleLead)
	if in.Plan.WindowStart != nil && in.Plan.WindowStart.After(startFrom) {
		startFrom = *in.Plan.WindowStart
	}

	var candidates []calendarDomain.Event
	for _, e := range in.Events {
		if !e.Start.Before(deadline) || !e.End.After(startFrom) {
			continue
		}
		cap, managed := in.Captures[e.ID]
		if !managed || !r.movable(cap, in.Plan.Mode, in.Now) {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Cheapest-to-move first, so early subsets are the least disruptive.
	sort.Slice(candidates, func(i, j int) bool {
		ri := domain.RigidityScore(in.Captures[candidates[i].ID], in.Now, in.Offset)
		rj := domain.RigidityScore(in.Captures[candidates[j].ID], in.Now, in.Offset)
		return ri < rj
	})

	// The compressed buffer is a last resort reserved for hard deadlines;
	// window-bounded captures never squeeze their neighbours.
	bufferPasses := []bool{false}
	if in.Plan.Mode == domain.PlanModeDeadline {
		bufferPasses = append(bufferPasses, true)
	}
	for _, compressed := range bufferPasses {
		for size := 1; size <= maxSubsetSize && size <= len(candidates); size++ {
			for _, subset := range subsetsOfSize(candidates, size, maxSubsetsPerSize) {
				slot := r.slotWithout(in, subset, deadline, startFrom, compressed)
				if slot == nil {
					continue
				}
				if !r.prioritiesAllow(in, subset) {
					continue
				}
				res, err := r.evaluate(in, *slot, subset, compressed)
				if err != nil || res != nil {
					return res, err
				}
			}
		}
	}
	return nil, nil
}

// eligibleSubset checks that every blocking event can legally move.
func (r *ConflictResolver) eligibleSubset(in ResolveInput, blocking []calendarDomain.Event) ([]calendarDomain.Event, bool) {
	for _, e := range blocking {
		cap, managed := in.Captures[e.ID]
		if !managed {
			return nil, false
		}
		if !r.movable(cap, in.Plan.Mode, in.Now) {
			return nil, false
		}
	}
	if !r.prioritiesAllow(in, blocking) {
		return nil, false
	}
	return blocking, true
}

// prioritiesAllow requires the target to strictly outrank every displaced
// capture.
func (r *ConflictResolver) prioritiesAllow(in ResolveInput, subset []calendarDomain.Event) bool {
	targetPriority := domain.PriorityScore(in.Target, in.Now, in.Offset, r.weights)
	for _, e := range subset {
		if domain.PriorityScore(in.Captures[e.ID], in.Now, in.Offset, r.weights) >= targetPriority {
			return false
		}
	}
	return true
}

func (r *ConflictResolver) movable(c *domain.Capture, mode domain.PlanMode, now time.Time) bool {
	if c == nil || c.Status != domain.StatusScheduled || c.PlannedStart == nil {
		return false
	}
	if c.IsFrozen(now) {
		return false
	}
	if mode != domain.PlanModeDeadline && c.PlannedStart.Sub(now) <= StabilityWindow {
		return false
	}
	return true
}

// slotWithout searches for a slot before the deadline with the subset removed
// from the busy picture.
func (r *ConflictResolver) slotWithout(
	in ResolveInput,
	subset []calendarDomain.Event,
	deadline, startFrom time.Time,
	compressed bool,
) *domain.Slot {
	removed := make(map[string]bool, len(subset))
	for _, e := range subset {
		removed[e.ID] = true
	}
	buffer := time.Duration(domain.StandardBufferMinutes) * time.Minute
	if compressed {
		buffer = time.Duration(domain.CompressedBufferMinutes) * time.Minute
	}
	var slots []domain.Slot
	for _, e := range in.Events {
		if removed[e.ID] {
			continue
		}
		slots = append(slots, domain.Slot{Start: e.Start, End: e.End})
	}
	busy := domain.NewBusySet(slots, buffer)
	finder := domain.NewSlotFinder(busy, domain.NewWorkingWindow(in.Offset))
	return finder.FindBeforeDeadline(in.Target.Duration(), startFrom, deadline)
}

// evaluate prices the displacement, checks bounds and the net-gain rule, and
// computes the cascade. A nil resolution means declined.
func (r *ConflictResolver) evaluate(
	in ResolveInput,
	slot domain.Slot,
	subset []calendarDomain.Event,
	compressed bool,
) (*Resolution, error) {
	if len(subset) > maxMovedCaptures {
		return nil, nil
	}

	totalCost := 0.0
	totalMinutes := 0
	for _, e := range subset {
		cap := in.Captures[e.ID]
		// The cascade has not run yet, so the distance from the old start to
		// the far edge of the claimed slot approximates the displacement.
		minutes := int(slot.End.Sub(*cap.PlannedStart) / time.Minute)
		if minutes < 0 {
			minutes = -minutes
		}
		if minutes < 15 {
			minutes = 15
		}
		totalMinutes += minutes
		totalCost += domain.RescheduleCost(cap, in.Now, in.Offset, minutes)
	}
	if totalMinutes > maxMovedMinutes {
		return nil, nil
	}

	// Benefit scales the target's priority to the minutes actually claimed;
	// residual overlap with events outside the subset is charged softly.
	claimed := slot.Duration().Minutes()
	targetPriority := domain.PriorityScore(in.Target, in.Now, in.Offset, r.weights)
	benefit := targetPriority / in.Target.Duration().Minutes() * claimed

	moved := make(map[string]bool, len(subset))
	for _, e := range subset {
		moved[e.ID] = true
	}
	overlapMinutes := 0.0
	for _, e := range in.Events {
		if moved[e.ID] {
			continue
		}
		overlapMinutes += float64(slot.OverlapMinutes(domain.Slot{Start: e.Start, End: e.End}))
	}

	net := benefit - totalCost - overlapSoftCostRate*overlapMinutes
	threshold := preemptBaseThreshold + preemptMovePenalty*float64(len(subset))
	if net < threshold || net/claimed < preemptMinGainPerMinute {
		r.logger.Debug("preemption declined",
			"capture_id", in.Target.ID(),
			"net", net,
			"threshold", threshold,
			"moves", len(subset))
		return nil, nil
	}

	moves := r.cascade(in, slot, subset)
	if len(moves) > maxMovedCaptures {
		return nil, nil
	}
	return &Resolution{Slot: slot, Moves: moves, Compressed: compressed}, nil
}

// cascade relocates each displaced capture with plain, non-preemptive search.
// A capture that cannot be placed loses its slot and returns to pending; depth
// never exceeds one level of relocation.
func (r *ConflictResolver) cascade(in ResolveInput, claimed domain.Slot, subset []calendarDomain.Event) []*Move {
	displaced := make([]*Move, 0, len(subset))
	removed := make(map[string]bool, len(subset))
	for _, e := range subset {
		removed[e.ID] = true
		cap := in.Captures[e.ID]
		displaced = append(displaced, &Move{
			Capture: cap,
			Event:   e,
			From:    domain.Slot{Start: e.Start, End: e.End},
		})
	}

	// Highest-priority displaced capture picks its new slot first.
	sort.Slice(displaced, func(i, j int) bool {
		pi := domain.PriorityScore(displaced[i].Capture, in.Now, in.Offset, r.weights)
		pj := domain.PriorityScore(displaced[j].Capture, in.Now, in.Offset, r.weights)
		if pi != pj {
			return pi > pj
		}
		if displaced[i].Capture.Importance != displaced[j].Capture.Importance {
			return displaced[i].Capture.Importance > displaced[j].Capture.Importance
		}
		di := displaced[i].Capture.Duration()
		dj := displaced[j].Capture.Duration()
		if di != dj {
			return di < dj
		}
		return displaced[i].From.Start.Before(displaced[j].From.Start)
	})

	buffer := time.Duration(domain.StandardBufferMinutes) * time.Minute
	var slots []domain.Slot
	for _, e := range in.Events {
		if removed[e.ID] {
			continue
		}
		slots = append(slots, domain.Slot{Start: e.Start, End: e.End})
	}
	busy := domain.NewBusySet(slots, buffer)
	busy.Add(claimed, buffer)
	window := domain.NewWorkingWindow(in.Offset)
	startFrom := in.Now.Add(ScheduleLead)

	for _, move := range displaced {
		finder := domain.NewSlotFinder(busy, window)
		var slot *domain.Slot
		if deadline := move.Capture.ResolvedDeadline(in.Offset); deadline != nil {
			slot = finder.FindBeforeDeadline(move.Capture.Duration(), startFrom, *deadline)
		}
		if slot == nil {
			slot = finder.FindFirstFree(move.Capture.Duration(), startFrom)
		}
		if slot != nil {
			move.To = slot
			busy.Add(*slot, buffer)
		}
	}
	return displaced
}

// subsetsOfSize returns up to limit index-ordered subsets of the given size.
func subsetsOfSize(events []calendarDomain.Event, size, limit int) [][]calendarDomain.Event {
	var out [][]calendarDomain.Event
	idx := make([]int, size)
	for i := range idx {
		idx[i] = i
	}
	n := len(events)
	for len(out) < limit {
		subset := make([]calendarDomain.Event, size)
		for i, j := range idx {
			subset[i] = events[j]
		}
		out = append(out, subset)

		i := size - 1
		for i >= 0 && idx[i] == n-size+i {
			i--
		}
		if i < 0 {
			break
		}
		idx[i]++
		for j := i + 1; j < size; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
	return out
}
