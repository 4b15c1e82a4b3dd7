package domain

import (
	"time"

	sharedDomain "github.com/diaguru/diaguru/internal/shared/domain"
	"github.com/google/uuid"
)

// Status is the placement state of a capture.
type Status string

const (
	StatusPending              Status = "pending"
	StatusScheduled            Status = "scheduled"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
)

// Kind classifies what a capture represents.
type Kind string

const (
	KindTask         Kind = "task"
	KindMeeting      Kind = "meeting"
	KindRoutineSleep Kind = "routine.sleep"
	KindRoutineMeal  Kind = "routine.meal"
)

// StartFlexibility says how negotiable the start time is.
type StartFlexibility string

const (
	StartHard    StartFlexibility = "hard"
	StartSoft    StartFlexibility = "soft"
	StartAnytime StartFlexibility = "anytime"
)

// DurationFlexibility says whether a capture may be split into chunks.
type DurationFlexibility string

const (
	DurationFixed        DurationFlexibility = "fixed"
	DurationSplitAllowed DurationFlexibility = "split_allowed"
)

const (
	// MinDurationMinutes and MaxDurationMinutes bound the usable estimate.
	MinDurationMinutes = 5
	MaxDurationMinutes = 480
	// DefaultDurationMinutes is used when no estimate was captured.
	DefaultDurationMinutes = 30
)

// Capture is the unit of work: a user note plus the structured constraints
// the scheduler places on the calendar.
type Capture struct {
	sharedDomain.BaseAggregateRoot

	OwnerID uuid.UUID
	Content string
	Kind    Kind

	EstimatedMinutes int

	// Importance facets.
	Urgency           int // 1..5
	Impact            int // 1..5
	Blocking          bool
	ReschedulePenalty int // 0..3
	ExternalityScore  float64
	Importance        int // 1..3, legacy coarse scale

	// Constraints.
	ConstraintType     ConstraintType
	ConstraintTime     *time.Time
	ConstraintEnd      *time.Time
	ConstraintDate     *time.Time
	OriginalTargetTime *time.Time
	DeadlineAt         *time.Time
	WindowStart        *time.Time
	WindowEnd          *time.Time
	StartTargetAt      *time.Time
	IsSoftStart        bool

	// Flexibility.
	CannotOverlap       bool
	StartFlexibility    StartFlexibility
	DurationFlexibility DurationFlexibility
	MinChunkMinutes     int
	MaxSplits           int

	// Placement state.
	Status            Status
	PlannedStart      *time.Time
	PlannedEnd        *time.Time
	CalendarEventID   string
	CalendarEventETag string
	RescheduleCount   int
	FreezeUntil       *time.Time
	PlanID            *uuid.UUID
	ManualTouchAt     *time.Time
	SchedulingNotes   string
}

// NewCapture creates a pending capture owned by the given user.
func NewCapture(ownerID uuid.UUID, content string) *Capture {
	return &Capture{
		BaseAggregateRoot:   sharedDomain.NewBaseAggregateRoot(),
		OwnerID:             ownerID,
		Content:             content,
		Kind:                KindTask,
		ConstraintType:      ConstraintFlexible,
		StartFlexibility:    StartAnytime,
		DurationFlexibility: DurationSplitAllowed,
		Status:              StatusPending,
	}
}

// RehydrateCapture recreates a capture from persisted state. The caller fills
// the exported fields after construction.
func RehydrateCapture(id uuid.UUID, createdAt, updatedAt time.Time) *Capture {
	base := sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	return &Capture{BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(base)}
}

// DurationMinutes returns the estimate clamped to [5, 480], defaulting to 30.
func (c *Capture) DurationMinutes() int {
	m := c.EstimatedMinutes
	if m == 0 {
		m = DefaultDurationMinutes
	}
	if m < MinDurationMinutes {
		m = MinDurationMinutes
	}
	if m > MaxDurationMinutes {
		m = MaxDurationMinutes
	}
	return m
}

// Duration returns the clamped estimate as a time.Duration.
func (c *Capture) Duration() time.Duration {
	return time.Duration(c.DurationMinutes()) * time.Minute
}

// ResolvedDeadline returns the earliest effective deadline across every
// deadline-bearing field, or nil if the capture carries none. A bare
// constraint date means end of that local day.
func (c *Capture) ResolvedDeadline(offset time.Duration) *time.Time {
	var earliest *time.Time
	consider := func(t *time.Time) {
		if t == nil {
			return
		}
		if earliest == nil || t.Before(*earliest) {
			v := *t
			earliest = &v
		}
	}
	consider(c.DeadlineAt)
	consider(c.WindowEnd)
	consider(c.ConstraintEnd)
	consider(c.StartTargetAt)
	if c.ConstraintType == ConstraintDeadlineTime {
		consider(c.ConstraintTime)
	}
	if c.ConstraintDate != nil {
		local := c.ConstraintDate.Add(offset)
		eod := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 0, 0, time.UTC).Add(-offset)
		consider(&eod)
	}
	consider(c.OriginalTargetTime)
	return earliest
}

// HardDeadline is the latest moment the capture may still be running. Unlike
// ResolvedDeadline it ignores the start target, which bounds when work should
// begin, not when it must end.
func (c *Capture) HardDeadline(offset time.Duration) *time.Time {
	var earliest *time.Time
	consider := func(t *time.Time) {
		if t == nil {
			return
		}
		if earliest == nil || t.Before(*earliest) {
			v := *t
			earliest = &v
		}
	}
	consider(c.DeadlineAt)
	consider(c.WindowEnd)
	consider(c.ConstraintEnd)
	if c.ConstraintType == ConstraintDeadlineTime {
		consider(c.ConstraintTime)
	}
	if c.ConstraintDate != nil {
		local := c.ConstraintDate.Add(offset)
		eod := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 0, 0, time.UTC).Add(-offset)
		consider(&eod)
	}
	return earliest
}

// IsFrozen reports whether the resolver must not displace this capture.
func (c *Capture) IsFrozen(now time.Time) bool {
	return c.FreezeUntil != nil && c.FreezeUntil.After(now)
}

// MarkScheduled records a successful placement.
func (c *Capture) MarkScheduled(start, end time.Time, eventID, etag string, planID uuid.UUID) {
	c.Status = StatusScheduled
	c.PlannedStart = &start
	c.PlannedEnd = &end
	c.CalendarEventID = eventID
	c.CalendarEventETag = etag
	c.PlanID = &planID
	c.SchedulingNotes = ""
	c.Touch()
}

// ClearPlacement resets the capture to pending and drops calendar linkage.
func (c *Capture) ClearPlacement() {
	c.Status = StatusPending
	c.PlannedStart = nil
	c.PlannedEnd = nil
	c.CalendarEventID = ""
	c.CalendarEventETag = ""
	c.Touch()
}

// MarkCompleted finishes the capture and clears placement fields. The row is
// preserved; only explicit deletion destroys a capture.
func (c *Capture) MarkCompleted() {
	c.Status = StatusCompleted
	c.PlannedStart = nil
	c.PlannedEnd = nil
	c.CalendarEventID = ""
	c.CalendarEventETag = ""
	c.Touch()
}

// BumpRescheduleCount increments the monotonic displacement counter.
func (c *Capture) BumpRescheduleCount() {
	c.RescheduleCount++
	c.Touch()
}

// PlacementSnapshot is the reversible portion of a capture's state, recorded
// before and after every plan action.
type PlacementSnapshot struct {
	Status            Status     `json:"status"`
	PlannedStart      *time.Time `json:"planned_start,omitempty"`
	PlannedEnd        *time.Time `json:"planned_end,omitempty"`
	CalendarEventID   string     `json:"calendar_event_id,omitempty"`
	CalendarEventETag string     `json:"calendar_event_etag,omitempty"`
	FreezeUntil       *time.Time `json:"freeze_until,omitempty"`
	PlanID            *uuid.UUID `json:"plan_id,omitempty"`
}

// Snapshot captures the current placement state.
func (c *Capture) Snapshot() PlacementSnapshot {
	return PlacementSnapshot{
		Status:            c.Status,
		PlannedStart:      copyTime(c.PlannedStart),
		PlannedEnd:        copyTime(c.PlannedEnd),
		CalendarEventID:   c.CalendarEventID,
		CalendarEventETag: c.CalendarEventETag,
		FreezeUntil:       copyTime(c.FreezeUntil),
		PlanID:            copyUUID(c.PlanID),
	}
}

// ApplySnapshot restores a previously recorded placement state.
func (c *Capture) ApplySnapshot(s PlacementSnapshot) {
	c.Status = s.Status
	c.PlannedStart = copyTime(s.PlannedStart)
	c.PlannedEnd = copyTime(s.PlannedEnd)
	c.CalendarEventID = s.CalendarEventID
	c.CalendarEventETag = s.CalendarEventETag
	c.FreezeUntil = copyTime(s.FreezeUntil)
	c.PlanID = copyUUID(s.PlanID)
	c.Touch()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// Chunk is a realized interval on the calendar for a capture. Usually one per
// capture; multiple when the capture was split.
type Chunk struct {
	CaptureID  uuid.UUID
	Start      time.Time
	End        time.Time
	Late       bool
	Overlapped bool
	Prime      bool
}
