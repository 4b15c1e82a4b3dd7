package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/diaguru/diaguru/internal/scheduling/application/commands"
	"github.com/diaguru/diaguru/internal/scheduling/domain"
	"github.com/diaguru/diaguru/internal/shared/infrastructure/locking"
)

// Handlers holds the HTTP endpoints.
type Handlers struct {
	ingest   *commands.IngestCaptureHandler
	schedule *commands.ScheduleCaptureHandler
	undo     *commands.UndoPlanHandler
	logger   *slog.Logger
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	Content          string `json:"content"`
	Timezone         string `json:"timezone,omitempty"`
	UTCOffsetMinutes int    `json:"utc_offset_minutes"`
}

// IngestCapture creates a capture from raw text.
func (h *Handlers) IngestCapture(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}

	capture, err := h.ingest.Handle(r.Context(), commands.IngestCaptureCommand{
		UserID:           userID,
		Content:          req.Content,
		Timezone:         req.Timezone,
		UTCOffsetMinutes: req.UTCOffsetMinutes,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, captureResponse(capture))
}

type slotRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type scheduleRequest struct {
	Timezone         string       `json:"timezone,omitempty"`
	UTCOffsetMinutes int          `json:"utc_offset_minutes"`
	Reschedule       bool         `json:"reschedule,omitempty"`
	Preferred        *slotRequest `json:"preferred,omitempty"`
	AllowOverlap     bool         `json:"allow_overlap,omitempty"`
}

// ScheduleCapture runs one scheduling request.
func (h *Handlers) ScheduleCapture(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	captureID, err := uuid.Parse(r.PathValue("captureID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed capture id")
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}

	offsetMinutes := req.UTCOffsetMinutes
	if offsetMinutes == 0 && req.Timezone != "" {
		loc, err := time.LoadLocation(req.Timezone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "unknown timezone")
			return
		}
		_, seconds := time.Now().In(loc).Zone()
		offsetMinutes = seconds / 60
	}

	cmd := commands.ScheduleCaptureCommand{
		CaptureID:        captureID,
		UserID:           userID,
		Intent:           commands.IntentSchedule,
		UTCOffsetMinutes: offsetMinutes,
		AllowOverlap:     req.AllowOverlap,
	}
	if req.Reschedule {
		cmd.Intent = commands.IntentReschedule
	}
	if req.Preferred != nil {
		if !req.Preferred.End.After(req.Preferred.Start) {
			writeError(w, http.StatusBadRequest, "invalid_input", "preferred slot end must be after start")
			return
		}
		cmd.Preferred = &domain.Slot{Start: req.Preferred.Start.UTC(), End: req.Preferred.End.UTC()}
	}

	result, err := h.schedule.Handle(r.Context(), cmd)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse(result))
}

// CompleteCapture finishes a capture and clears its calendar footprint.
func (h *Handlers) CompleteCapture(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	captureID, err := uuid.Parse(r.PathValue("captureID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed capture id")
		return
	}

	result, err := h.schedule.Handle(r.Context(), commands.ScheduleCaptureCommand{
		CaptureID: captureID,
		UserID:    userID,
		Intent:    commands.IntentComplete,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, captureResponse(result.Capture))
}

type undoRequest struct {
	UTCOffsetMinutes int `json:"utc_offset_minutes"`
}

// UndoPlan reverts a whole scheduling run.
func (h *Handlers) UndoPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	planID, err := uuid.Parse(r.PathValue("planID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed plan id")
		return
	}
	// The body is optional; a missing offset means UTC.
	var req undoRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := h.undo.Handle(r.Context(), commands.UndoPlanCommand{
		PlanID:           planID,
		UserID:           userID,
		UTCOffsetMinutes: req.UTCOffsetMinutes,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	reverted := make([]any, 0, len(result.RevertedCaptures))
	for _, c := range result.RevertedCaptures {
		reverted = append(reverted, captureResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id":           result.Plan.ID(),
		"summary":           result.Plan.Summary,
		"reverted_captures": reverted,
	})
}

func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-User-ID header")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "malformed X-User-ID header")
		return uuid.Nil, false
	}
	return userID, true
}

// writeDomainError maps stable error codes to HTTP statuses.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	var noSlot *domain.NoSlotError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrNotLinked):
		writeError(w, http.StatusBadRequest, "not_linked", "calendar account is not linked or needs reconnect")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "capture belongs to another user")
	case errors.Is(err, domain.ErrCaptureNotFound):
		writeError(w, http.StatusNotFound, "capture_not_found", "capture not found")
	case errors.Is(err, domain.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "plan_not_found", "plan not found")
	case errors.Is(err, domain.ErrPlanAlreadyUndone):
		writeError(w, http.StatusConflict, "plan_already_undone", "plan was already undone")
	case errors.Is(err, locking.ErrLockHeld):
		writeError(w, http.StatusConflict, "scheduling_in_progress", "another scheduling run is in progress")
	case errors.As(err, &noSlot):
		payload := map[string]any{
			"code":             noSlot.Reason.Error(),
			"message":          "no slot satisfies the constraints",
			"capture_id":       noSlot.CaptureID,
			"mode":             noSlot.Mode,
			"duration_minutes": noSlot.DurationMinutes,
			"reference_now":    noSlot.ReferenceNow,
		}
		if noSlot.Deadline != nil {
			payload["deadline"] = noSlot.Deadline
		}
		writeJSON(w, http.StatusConflict, map[string]any{"error": payload})
	case errors.Is(err, domain.ErrProviderError):
		writeError(w, http.StatusBadGateway, "provider_error", "calendar provider request failed")
	default:
		h.logger.Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func captureResponse(c *domain.Capture) map[string]any {
	resp := map[string]any{
		"id":               c.ID(),
		"content":          c.Content,
		"kind":             c.Kind,
		"status":           c.Status,
		"constraint_type":  c.ConstraintType,
		"duration_minutes": c.DurationMinutes(),
		"reschedule_count": c.RescheduleCount,
	}
	if c.PlannedStart != nil {
		resp["planned_start"] = c.PlannedStart
	}
	if c.PlannedEnd != nil {
		resp["planned_end"] = c.PlannedEnd
	}
	if c.PlanID != nil {
		resp["plan_id"] = c.PlanID
	}
	if c.SchedulingNotes != "" {
		resp["scheduling_notes"] = c.SchedulingNotes
	}
	return resp
}

func scheduleResponse(result *commands.ScheduleCaptureResult) map[string]any {
	resp := map[string]any{"capture": captureResponse(result.Capture)}
	if result.Plan != nil {
		actions := make([]map[string]any, 0, len(result.Plan.Actions))
		for _, a := range result.Plan.Actions {
			actions = append(actions, map[string]any{
				"capture_id":  a.CaptureID,
				"content":     a.CaptureContent,
				"action_type": a.ActionType,
				"prev":        a.Prev,
				"next":        a.Next,
			})
		}
		resp["plan"] = map[string]any{
			"id":      result.Plan.ID(),
			"summary": result.Plan.Summary,
			"actions": actions,
		}
	}
	if result.Decision != nil {
		resp["decision"] = result.Decision
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
