package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// Slots walks [windowStart, windowEnd) in step increments and emits every slot
// of the given duration that fits inside the window, in chronological order.
// A slot is unavailable when it starts before now or overlaps a busy interval.
//
// All times are expected to be in the same location (timezone).
func Slots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []Slot {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []Slot
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		slots = append(slots, Slot{
			Start:     t,
			End:       t.Add(duration),
			Available: !t.Before(now) && !overlapsAny(t, t.Add(duration), busy),
		})
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
