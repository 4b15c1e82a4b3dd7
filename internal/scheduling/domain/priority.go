package domain

import (
	"math"
	"time"
)

// PriorityWeights tune the priority score. Defaults mirror the product's
// shipped behavior; recalibration happens through config, not code.
type PriorityWeights struct {
	Deadline   float64
	Window     float64
	Importance float64
	External   float64
	Age        float64
	Duration   float64
	Reschedule float64
}

// DefaultPriorityWeights returns the shipped weight set.
func DefaultPriorityWeights() PriorityWeights {
	return PriorityWeights{
		Deadline:   4,
		Window:     1,
		Importance: 3,
		External:   2,
		Age:        1,
		Duration:   0.75,
		Reschedule: 1,
	}
}

// PriorityScore computes the scheduling priority of a capture at the given
// instant. Higher scores schedule earlier. Pure in (capture, now).
func PriorityScore(c *Capture, now time.Time, offset time.Duration, w PriorityWeights) float64 {
	duration := c.Duration()

	// Deadline pressure: clamped 24h over remaining slack, capped at 10,
	// halved for soft starts.
	d := 0.0
	if deadline := c.ResolvedDeadline(offset); deadline != nil {
		slack := deadline.Sub(now) - duration
		if slack < 5*time.Minute {
			slack = 5 * time.Minute
		}
		d = (24 * time.Hour).Hours() / slack.Hours()
		if d > 10 {
			d = 10
		}
		if c.IsSoftStart {
			d /= 2
		}
	}

	// Window approach: ramps to 1 over the final 6 hours before the window
	// (or fixed start) opens.
	wnd := 0.0
	if approach := windowApproach(c); approach != nil {
		until := approach.Sub(now)
		switch {
		case until <= 0:
			wnd = 1
		case until < 6*time.Hour:
			wnd = 1 - until.Hours()/6
		}
	}

	// Importance: blended urgency/impact, falling back to the coarse legacy
	// importance scale.
	imp := 0.0
	if c.Urgency > 0 || c.Impact > 0 {
		imp = 0.6*float64(c.Urgency)/5 + 0.4*float64(c.Impact)/5
	} else if c.Importance > 0 {
		imp = float64(c.Importance) / 3
	}

	ext := c.ExternalityScore / 3
	if ext > 1 {
		ext = 1
	}
	if ext < 0 {
		ext = 0
	}

	age := now.Sub(c.CreatedAt()).Hours() / 24 * 0.15
	if age < 0 {
		age = 0
	}

	hours := duration.Hours()
	resched := float64(c.RescheduleCount)*0.5 + float64(c.ReschedulePenalty)/3

	return w.Deadline*d + w.Window*wnd + w.Importance*imp + w.External*ext +
		w.Age*age - w.Duration*hours - w.Reschedule*resched
}

func windowApproach(c *Capture) *time.Time {
	if c.WindowStart != nil {
		return c.WindowStart
	}
	if c.ConstraintType == ConstraintStartTime && c.ConstraintTime != nil {
		return c.ConstraintTime
	}
	return nil
}

// RigidityScore estimates how hard a capture is to move. Higher means the
// resolver pays more to displace it.
func RigidityScore(c *Capture, now time.Time, offset time.Duration) float64 {
	r := float64(c.ReschedulePenalty)
	r += float64(c.RescheduleCount) * 0.5

	if deadline := c.ResolvedDeadline(offset); deadline != nil {
		r += 2
		// Tightening slack relative to duration makes the capture stickier.
		slackFrac := (deadline.Sub(now) - c.Duration()).Minutes() / c.Duration().Minutes()
		if slackFrac < 0 {
			slackFrac = 0
		}
		if slackFrac < 2 {
			r += 2 - slackFrac
		}
	}

	if c.CannotOverlap {
		r += 1.5
	}
	if c.DurationFlexibility == DurationFixed {
		r += 1
	}
	if c.StartFlexibility == StartHard {
		r += 2
	}

	r += 0.3*float64(c.Urgency) + 0.2*float64(c.Impact)
	if c.Blocking {
		r += 1
	}
	return r
}

// fragmentationK penalizes each move with a sub-linear term so many small
// moves stay cheaper than a few huge ones but are never free.
const fragmentationK = 2.0

// RescheduleCost is the cost of moving a capture by the given number of
// minutes.
func RescheduleCost(c *Capture, now time.Time, offset time.Duration, minutesMoved int) float64 {
	m := float64(minutesMoved)
	if m < 0 {
		m = -m
	}
	base := RigidityScore(c, now, offset) * m / c.Duration().Minutes()
	return base + fragmentationK*math.Sqrt(math.Max(1, m))
}
