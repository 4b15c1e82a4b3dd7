package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Extended-property keys written on every managed event. Events lacking the
// managed tag are external and must never be deleted or rewritten.
const (
	PropManaged          = "diaGuru"
	PropCaptureID        = "capture_id"
	PropActionID         = "action_id"
	PropPlanID           = "plan_id"
	PropPrioritySnapshot = "priority_snapshot"
)

var (
	// ErrEventNotFound maps a provider 404 on read paths.
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrPreconditionFailed maps a provider 412: the entity tag went stale
	// because the user edited the event. Callers re-fetch and retry once.
	ErrPreconditionFailed = errors.New("calendar event precondition failed")
)

// Event is a remote calendar event as seen by the scheduler.
type Event struct {
	ID      string
	Summary string
	Start   time.Time
	End     time.Time
	ETag    string
	Private map[string]string
}

// Managed reports whether this system created the event.
func (e Event) Managed() bool {
	return e.Private[PropManaged] == "true"
}

// CaptureID returns the capture the event belongs to, when managed.
func (e Event) CaptureID() (uuid.UUID, bool) {
	raw, ok := e.Private[PropCaptureID]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CreateEventInput describes a managed event to place on the calendar.
type CreateEventInput struct {
	Summary       string
	Start         time.Time
	End           time.Time
	CaptureID     uuid.UUID
	ActionID      uuid.UUID
	PlanID        *uuid.UUID
	PriorityScore float64
}

// CreatedEvent is the provider's handle for a newly created event.
type CreatedEvent struct {
	ID   string
	ETag string
}

// Gateway is the typed interface over the external calendar provider.
type Gateway interface {
	ListEvents(ctx context.Context, userID uuid.UUID, timeMin, timeMax time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, userID uuid.UUID, in CreateEventInput) (*CreatedEvent, error)
	GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*Event, error)
	// DeleteEvent sends If-Match when etag is non-empty. A provider 404 is
	// treated as success; a 412 surfaces as ErrPreconditionFailed.
	DeleteEvent(ctx context.Context, userID uuid.UUID, eventID, etag string) error
}

// DeleteWithRetry deletes an event and, on a stale entity tag, re-fetches the
// event once and retries with the fresh tag. Never retries more than once so a
// racing user edit is not clobbered.
func DeleteWithRetry(ctx context.Context, gw Gateway, userID uuid.UUID, eventID, etag string) error {
	err := gw.DeleteEvent(ctx, userID, eventID, etag)
	if !errors.Is(err, ErrPreconditionFailed) {
		return err
	}
	fresh, err := gw.GetEvent(ctx, userID, eventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil
		}
		return err
	}
	return gw.DeleteEvent(ctx, userID, eventID, fresh.ETag)
}
