package schedule

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) span in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Resolve computes the bookable UTC windows for one local calendar day.
// When the date carries an override, the override ranges fully replace the
// weekly ranges; the two sources are never merged. Time-off blocks are
// subtracted from whichever source applies.
func Resolve(dayLocal time.Time, weekly []Range, override []Range, hasOverride bool, blocks []Interval) []Interval {
	ranges := weekly
	if hasOverride {
		ranges = override
	}

	var out []Interval
	for _, rg := range ranges {
		w := dayWindow(dayLocal, rg)
		if !w.End.After(w.Start) {
			continue
		}
		out = append(out, subtractBlocks(w.Start, w.End, blocks)...)
	}
	sortIntervals(out)
	return out
}

func dayWindow(dayLocal time.Time, rg Range) Interval {
	midnight := time.Date(dayLocal.Year(), dayLocal.Month(), dayLocal.Day(), 0, 0, 0, 0, dayLocal.Location())
	return Interval{
		Start: midnight.Add(time.Duration(rg.StartMinute) * time.Minute).UTC(),
		End:   midnight.Add(time.Duration(rg.EndMinute) * time.Minute).UTC(),
	}
}

func subtractBlocks(baseStart, baseEnd time.Time, blocks []Interval) []Interval {
	if !baseEnd.After(baseStart) {
		return nil
	}
	var b []Interval
	for _, t := range blocks {
		// Clip to base interval.
		s := t.Start.UTC()
		e := t.End.UTC()
		if e.Before(baseStart) || !s.Before(baseEnd) {
			continue
		}
		if s.Before(baseStart) {
			s = baseStart
		}
		if e.After(baseEnd) {
			e = baseEnd
		}
		if e.After(s) {
			b = append(b, Interval{Start: s, End: e})
		}
	}
	if len(b) == 0 {
		return []Interval{{Start: baseStart, End: baseEnd}}
	}

	// Sort and merge overlapping blocks.
	sortIntervals(b)
	merged := make([]Interval, 0, len(b))
	for _, cur := range b {
		if len(merged) == 0 {
			merged = append(merged, cur)
			continue
		}
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}

	// Subtract merged blocks from base.
	var out []Interval
	cursor := baseStart
	for _, m := range merged {
		if m.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: m.Start})
		}
		if m.End.After(cursor) {
			cursor = m.End
		}
	}
	if baseEnd.After(cursor) {
		out = append(out, Interval{Start: cursor, End: baseEnd})
	}
	return out
}

func sortIntervals(in []Interval) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].Start.Equal(in[j].Start) {
			return in[i].End.Before(in[j].End)
		}
		return in[i].Start.Before(in[j].Start)
	})
}
