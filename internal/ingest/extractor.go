// Package ingest turns raw capture text into a structured, normalized
// capture before it is persisted.
package ingest

import (
	"context"
	"time"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// Extraction is the structured interpretation of a capture note. Nothing
// beyond this contract is assumed about the extractor.
type Extraction struct {
	Title            string               `json:"title"`
	EstimatedMinutes int                  `json:"estimated_minutes"`
	Deadline         *ExtractedDeadline   `json:"deadline,omitempty"`
	ScheduledTime    *ExtractedTime       `json:"scheduled_time,omitempty"`
	ExecutionWindow  *ExecutionWindow     `json:"execution_window,omitempty"`
	TimePreferences  TimePreferences      `json:"time_preferences"`
	Importance       ExtractedImportance  `json:"importance"`
	Flexibility      ExtractedFlexibility `json:"flexibility"`
	Kind             string               `json:"kind"`
	Missing          []string             `json:"missing,omitempty"`
	Clarifying       string               `json:"clarifying_question,omitempty"`
	Notes            []string             `json:"notes,omitempty"`
}

// ExtractedDeadline is a deadline the extractor found in the text.
type ExtractedDeadline struct {
	Datetime time.Time `json:"datetime"`
	Kind     string    `json:"kind"` // "time" or "date"
	Source   string    `json:"source"`
}

// ExtractedTime is a concrete start the extractor found in the text.
type ExtractedTime struct {
	Datetime  time.Time `json:"datetime"`
	Precision string    `json:"precision"`
	Source    string    `json:"source"`
}

// ExecutionWindow is a bounded interval the task should run in.
type ExecutionWindow struct {
	Relation string     `json:"relation"` // "within", "before_deadline"
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Source   string     `json:"source"`
}

// TimePreferences are soft placement hints.
type TimePreferences struct {
	TimeOfDay string `json:"time_of_day,omitempty"`
	Day       string `json:"day,omitempty"`
}

// ExtractedImportance mirrors the capture's importance facets.
type ExtractedImportance struct {
	Urgency           int    `json:"urgency"`
	Impact            int    `json:"impact"`
	ReschedulePenalty int    `json:"reschedule_penalty"`
	Blocking          bool   `json:"blocking"`
	Rationale         string `json:"rationale,omitempty"`
}

// ExtractedFlexibility mirrors the capture's flexibility facets.
type ExtractedFlexibility struct {
	CannotOverlap       bool   `json:"cannot_overlap"`
	StartFlexibility    string `json:"start_flexibility"`
	DurationFlexibility string `json:"duration_flexibility"`
	MinChunkMinutes     int    `json:"min_chunk_minutes"`
	MaxSplits           int    `json:"max_splits"`
}

// Extractor interprets capture text. Implementations may be no-op.
type Extractor interface {
	Extract(ctx context.Context, text, timezone string, now time.Time) (*Extraction, error)
}

// NoopExtractor performs no extraction; ingestion falls back to defaults plus
// the routine normalizer.
type NoopExtractor struct{}

// Extract returns nil, meaning no structured interpretation is available.
func (NoopExtractor) Extract(ctx context.Context, text, timezone string, now time.Time) (*Extraction, error) {
	return nil, nil
}

// ApplyExtraction maps an extraction onto a capture. Nil extractions leave
// the capture untouched.
func ApplyExtraction(c *domain.Capture, x *Extraction) {
	if x == nil {
		return
	}
	if x.EstimatedMinutes > 0 {
		c.EstimatedMinutes = x.EstimatedMinutes
	}
	if x.Kind != "" {
		c.Kind = domain.Kind(x.Kind)
	}

	if x.Importance.Urgency > 0 {
		c.Urgency = x.Importance.Urgency
	}
	if x.Importance.Impact > 0 {
		c.Impact = x.Importance.Impact
	}
	c.ReschedulePenalty = x.Importance.ReschedulePenalty
	c.Blocking = x.Importance.Blocking

	c.CannotOverlap = x.Flexibility.CannotOverlap
	if x.Flexibility.StartFlexibility != "" {
		c.StartFlexibility = domain.StartFlexibility(x.Flexibility.StartFlexibility)
	}
	if x.Flexibility.DurationFlexibility != "" {
		c.DurationFlexibility = domain.DurationFlexibility(x.Flexibility.DurationFlexibility)
	}
	if x.Flexibility.MinChunkMinutes > 0 {
		c.MinChunkMinutes = x.Flexibility.MinChunkMinutes
	}
	if x.Flexibility.MaxSplits > 0 {
		c.MaxSplits = x.Flexibility.MaxSplits
	}

	switch {
	case x.ExecutionWindow != nil && x.ExecutionWindow.Start != nil && x.ExecutionWindow.End != nil:
		c.ConstraintType = domain.ConstraintWindow
		c.WindowStart = x.ExecutionWindow.Start
		c.WindowEnd = x.ExecutionWindow.End
	case x.ScheduledTime != nil:
		c.ConstraintType = domain.ConstraintStartTime
		t := x.ScheduledTime.Datetime
		c.ConstraintTime = &t
		c.StartTargetAt = &t
		c.IsSoftStart = x.ScheduledTime.Precision != "exact"
	case x.Deadline != nil && x.Deadline.Kind == "date":
		c.ConstraintType = domain.ConstraintDeadlineDate
		t := x.Deadline.Datetime
		c.ConstraintDate = &t
	case x.Deadline != nil:
		c.ConstraintType = domain.ConstraintDeadlineTime
		t := x.Deadline.Datetime
		c.ConstraintTime = &t
		c.DeadlineAt = &t
	}
}
