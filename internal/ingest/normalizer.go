package ingest

import (
	"strings"
	"time"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// Routine detection works on keywords. Normalization is idempotent: applying
// it to an already-normalized capture changes nothing.
var (
	sleepKeywords = []string{"sleep", "nap", "bedtime", "go to bed"}
	mealKeywords  = []string{"breakfast", "lunch", "dinner", "eat", "meal", "snack"}
)

// Normalizer applies routine-specific defaults after extraction, before
// scheduling.
type Normalizer struct{}

// NewNormalizer creates a routine normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize rewrites routine captures in place. Times are computed in the
// user's local day derived from the UTC offset.
func (n *Normalizer) Normalize(c *domain.Capture, now time.Time, offset time.Duration) {
	lower := strings.ToLower(c.Content)

	switch {
	case n.isBeforeSleep(lower):
		n.normalizeBeforeSleep(c, now, offset)
	case containsAny(lower, sleepKeywords):
		n.normalizeSleep(c, now, offset)
	case containsAny(lower, mealKeywords):
		n.normalizeMeal(c, lower, now, offset)
	}
}

// isBeforeSleep matches "before sleep" phrasings, which describe a task to do
// before bed rather than the sleep routine itself. It is checked ahead of the
// sleep keywords, so "read before bed" stays a deadline-bounded task even
// though "bedtime" alone means the routine.
func (n *Normalizer) isBeforeSleep(lower string) bool {
	return strings.Contains(lower, "before sleep") ||
		strings.Contains(lower, "before i sleep") ||
		strings.Contains(lower, "before bed")
}

func (n *Normalizer) normalizeSleep(c *domain.Capture, now time.Time, offset time.Duration) {
	c.Kind = domain.KindRoutineSleep
	c.CannotOverlap = true
	c.DurationFlexibility = domain.DurationFixed
	c.StartFlexibility = domain.StartSoft
	c.Blocking = false

	// Inferred deadlines make no sense for a nightly routine.
	c.DeadlineAt = nil
	c.ConstraintDate = nil
	c.OriginalTargetTime = nil

	if c.WindowStart == nil || c.WindowEnd == nil {
		start := localClock(now, offset, 22, 30)
		end := localClock(now, offset, 7, 30).Add(24 * time.Hour)
		c.ConstraintType = domain.ConstraintWindow
		c.WindowStart = &start
		c.WindowEnd = &end
	}

	if c.Urgency > 3 {
		c.Urgency = 3
	}
	if c.Impact > 3 {
		c.Impact = 3
	}
	if c.ReschedulePenalty > 1 {
		c.ReschedulePenalty = 1
	}
}

func (n *Normalizer) normalizeMeal(c *domain.Capture, lower string, now time.Time, offset time.Duration) {
	c.Kind = domain.KindRoutineMeal
	c.CannotOverlap = false
	c.DurationFlexibility = domain.DurationFixed
	c.StartFlexibility = domain.StartSoft
	c.Blocking = false

	if c.WindowStart == nil || c.WindowEnd == nil {
		var start, end time.Time
		switch {
		case strings.Contains(lower, "breakfast"):
			start, end = localClock(now, offset, 7, 30), localClock(now, offset, 9, 30)
		case strings.Contains(lower, "lunch"):
			start, end = localClock(now, offset, 12, 0), localClock(now, offset, 14, 0)
		case strings.Contains(lower, "dinner"):
			start, end = localClock(now, offset, 18, 0), localClock(now, offset, 20, 0)
		default:
			start, end = localClock(now, offset, 12, 0), localClock(now, offset, 13, 0)
		}
		c.ConstraintType = domain.ConstraintWindow
		c.WindowStart = &start
		c.WindowEnd = &end
	}

	if c.Urgency > 3 {
		c.Urgency = 3
	}
	if c.Impact > 3 {
		c.Impact = 3
	}
	if c.ReschedulePenalty > 1 {
		c.ReschedulePenalty = 1
	}
}

// normalizeBeforeSleep keeps the task a task but bounds it with a soft
// deadline at 23:30 local.
func (n *Normalizer) normalizeBeforeSleep(c *domain.Capture, now time.Time, offset time.Duration) {
	if c.DeadlineAt != nil {
		return
	}
	deadline := localClock(now, offset, 23, 30)
	if !deadline.After(now) {
		deadline = deadline.Add(24 * time.Hour)
	}
	c.ConstraintType = domain.ConstraintDeadlineTime
	c.DeadlineAt = &deadline
	c.ConstraintTime = &deadline
	c.IsSoftStart = true
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// localClock returns the instant at hour:min on the user's local day
// containing now.
func localClock(now time.Time, offset time.Duration, hour, min int) time.Time {
	local := now.Add(offset).UTC()
	day := time.Date(local.Year(), local.Month(), local.Day(), hour, min, 0, 0, time.UTC)
	return day.Add(-offset)
}
