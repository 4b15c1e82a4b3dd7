package domain

import (
	"sort"
	"time"
)

const (
	// WorkingDayStartHour and WorkingDayEndHour bound the daily band in which
	// the scheduler may place events, expressed in the caller's local time.
	WorkingDayStartHour = 8
	WorkingDayEndHour   = 22

	// StandardBufferMinutes inflates busy intervals during normal search.
	// CompressedBufferMinutes is used by preemption search in deadline mode.
	StandardBufferMinutes   = 30
	CompressedBufferMinutes = 15

	// SearchHorizonDays is how far slot search walks before giving up.
	SearchHorizonDays = 7

	// SearchStep is the candidate-start grid.
	SearchStep = 15 * time.Minute
)

// WorkingWindow gates slots to the daily local band. Offset is the caller's
// offset from UTC; all arithmetic stays on absolute instants and the offset is
// applied only for window comparisons.
type WorkingWindow struct {
	StartHour int
	EndHour   int
	Offset    time.Duration
}

// NewWorkingWindow returns the default 08:00-22:00 window at the given offset.
func NewWorkingWindow(offset time.Duration) WorkingWindow {
	return WorkingWindow{StartHour: WorkingDayStartHour, EndHour: WorkingDayEndHour, Offset: offset}
}

// Contains reports whether [s.Start, s.End) lies within the window on a single
// local day.
func (w WorkingWindow) Contains(s Slot) bool {
	ls := s.Start.Add(w.Offset).UTC()
	le := s.End.Add(w.Offset).UTC()
	if ls.Year() != le.Year() || ls.YearDay() != le.YearDay() {
		return false
	}
	startMin := ls.Hour()*60 + ls.Minute()
	endMin := le.Hour()*60 + le.Minute()
	if le.Second() > 0 || le.Nanosecond() > 0 {
		endMin++
	}
	return startMin >= w.StartHour*60 && endMin <= w.EndHour*60
}

// DayStart returns the absolute instant of the window opening on the local day
// of t plus dayOffset days.
func (w WorkingWindow) DayStart(t time.Time, dayOffset int) time.Time {
	local := t.Add(w.Offset).UTC().AddDate(0, 0, dayOffset)
	open := time.Date(local.Year(), local.Month(), local.Day(), w.StartHour, 0, 0, 0, time.UTC)
	return open.Add(-w.Offset)
}

// DayEnd returns the absolute instant of the window closing on the local day
// of t plus dayOffset days.
func (w WorkingWindow) DayEnd(t time.Time, dayOffset int) time.Time {
	local := t.Add(w.Offset).UTC().AddDate(0, 0, dayOffset)
	close := time.Date(local.Year(), local.Month(), local.Day(), w.EndHour, 0, 0, 0, time.UTC)
	return close.Add(-w.Offset)
}

// BusySet holds busy intervals inflated by a buffer on both sides, sorted by
// start.
type BusySet struct {
	intervals []Slot
}

// NewBusySet inflates each event by buffer and sorts the result.
func NewBusySet(events []Slot, buffer time.Duration) *BusySet {
	set := &BusySet{intervals: make([]Slot, 0, len(events))}
	for _, e := range events {
		set.intervals = append(set.intervals, Slot{Start: e.Start.Add(-buffer), End: e.End.Add(buffer)})
	}
	set.sort()
	return set
}

func (b *BusySet) sort() {
	sort.Slice(b.intervals, func(i, j int) bool {
		return b.intervals[i].Start.Before(b.intervals[j].Start)
	})
}

// Add inserts another busy interval, inflated by buffer.
func (b *BusySet) Add(slot Slot, buffer time.Duration) {
	b.intervals = append(b.intervals, Slot{Start: slot.Start.Add(-buffer), End: slot.End.Add(buffer)})
	b.sort()
}

// IsFree reports whether the slot intersects no busy interval.
func (b *BusySet) IsFree(slot Slot) bool {
	for _, iv := range b.intervals {
		if iv.Start.After(slot.End) || iv.Start.Equal(slot.End) {
			break
		}
		if iv.Overlaps(slot) {
			return false
		}
	}
	return true
}

// Intervals returns the inflated intervals, sorted by start.
func (b *BusySet) Intervals() []Slot {
	return b.intervals
}

// SlotFinder walks the working window looking for free slots against a busy
// set. Deterministic for a given busy set.
type SlotFinder struct {
	Busy    *BusySet
	Window  WorkingWindow
	Horizon int
	Step    time.Duration
}

// NewSlotFinder builds a finder with the default horizon and grid.
func NewSlotFinder(busy *BusySet, window WorkingWindow) *SlotFinder {
	return &SlotFinder{Busy: busy, Window: window, Horizon: SearchHorizonDays, Step: SearchStep}
}

// FindFirstFree returns the first free in-window slot of the given duration at
// or after startFrom, walking day by day up to the horizon.
func (f *SlotFinder) FindFirstFree(duration time.Duration, startFrom time.Time) *Slot {
	for day := 0; day < f.Horizon; day++ {
		dayStart := f.Window.DayStart(startFrom, day)
		dayEnd := f.Window.DayEnd(startFrom, day)
		cand := dayStart
		if startFrom.After(cand) {
			cand = startFrom
		}
		for !cand.Add(duration).After(dayEnd) {
			slot := Slot{Start: cand, End: cand.Add(duration)}
			if f.Window.Contains(slot) && f.Busy.IsFree(slot) {
				return &slot
			}
			cand = cand.Add(f.Step)
		}
	}
	return nil
}

// FindBeforeDeadline returns the earliest free in-window slot whose end does
// not exceed the deadline.
func (f *SlotFinder) FindBeforeDeadline(duration time.Duration, startFrom, deadline time.Time) *Slot {
	latestStart := deadline.Add(-duration)
	for day := 0; day < f.Horizon; day++ {
		dayStart := f.Window.DayStart(startFrom, day)
		if dayStart.After(latestStart) {
			return nil
		}
		dayEnd := f.Window.DayEnd(startFrom, day)
		cand := dayStart
		if startFrom.After(cand) {
			cand = startFrom
		}
		for !cand.Add(duration).After(dayEnd) {
			if cand.After(latestStart) {
				return nil
			}
			slot := Slot{Start: cand, End: cand.Add(duration)}
			if f.Window.Contains(slot) && f.Busy.IsFree(slot) {
				return &slot
			}
			cand = cand.Add(f.Step)
		}
	}
	return nil
}

// FindWithinWindow restricts the search to [wStart, wEnd].
func (f *SlotFinder) FindWithinWindow(duration time.Duration, startFrom, wStart, wEnd time.Time) *Slot {
	from := startFrom
	if wStart.After(from) {
		from = wStart
	}
	slot := f.FindFirstFree(duration, from)
	if slot == nil || slot.End.After(wEnd) {
		return nil
	}
	return slot
}

// FindLatestWithinWindow walks backwards from the latest possible start inside
// [wStart, wEnd], returning the latest free in-window slot.
func (f *SlotFinder) FindLatestWithinWindow(duration time.Duration, startFrom, wStart, wEnd time.Time) *Slot {
	earliest := startFrom
	if wStart.After(earliest) {
		earliest = wStart
	}
	cand := wEnd.Add(-duration)
	for !cand.Before(earliest) {
		slot := Slot{Start: cand, End: cand.Add(duration)}
		if f.Window.Contains(slot) && f.Busy.IsFree(slot) {
			return &slot
		}
		cand = cand.Add(-f.Step)
	}
	return nil
}
