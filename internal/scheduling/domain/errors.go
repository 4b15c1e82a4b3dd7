package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stable error codes surfaced to clients.
var (
	ErrInvalidInput        = errors.New("invalid_input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotLinked           = errors.New("not_linked")
	ErrCaptureNotFound     = errors.New("capture_not_found")
	ErrPlanNotFound        = errors.New("plan_not_found")
	ErrPlanAlreadyUndone   = errors.New("plan_already_undone")
	ErrNoSlot              = errors.New("no_slot")
	ErrSlotExceedsDeadline = errors.New("slot_exceeds_deadline")
	ErrProviderError       = errors.New("provider_error")
)

// NoSlotError carries the diagnostic payload for a failed slot search. It
// wraps ErrNoSlot or ErrSlotExceedsDeadline so callers can branch on the code
// while the API returns the full context.
type NoSlotError struct {
	Reason          error
	CaptureID       uuid.UUID
	Mode            PlanMode
	DurationMinutes int
	Deadline        *time.Time
	ReferenceNow    time.Time
}

func (e *NoSlotError) Error() string {
	return fmt.Sprintf("%s: capture=%s mode=%s duration=%dm", e.Reason, e.CaptureID, e.Mode, e.DurationMinutes)
}

func (e *NoSlotError) Unwrap() error {
	return e.Reason
}
