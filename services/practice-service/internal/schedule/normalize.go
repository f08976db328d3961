package schedule

import "fmt"

// Range is a half-open [StartMinute, EndMinute) span measured from local midnight.
type Range struct {
	StartMinute int
	EndMinute   int
}

// FoldGrid folds a per-weekday selected-hour grid (as submitted by the
// dashboard) into disjoint minute ranges. Consecutive hours merge into one
// range; gaps produce separate ranges, so {9,10,14,15} becomes 09:00-11:00 plus
// 14:00-16:00 and the gap stays closed. Weekdays follow time.Weekday (0=Sunday).
func FoldGrid(grid map[int][]int) (map[int][]Range, error) {
	out := make(map[int][]Range, len(grid))
	for weekday, hours := range grid {
		if weekday < 0 || weekday > 6 {
			return nil, fmt.Errorf("weekday %d out of range", weekday)
		}
		var selected [24]bool
		for _, h := range hours {
			if h < 0 || h > 23 {
				return nil, fmt.Errorf("hour %d out of range", h)
			}
			selected[h] = true
		}
		var ranges []Range
		for h := 0; h < 24; h++ {
			if !selected[h] {
				continue
			}
			start := h
			for h+1 < 24 && selected[h+1] {
				h++
			}
			ranges = append(ranges, Range{StartMinute: start * 60, EndMinute: (h + 1) * 60})
		}
		if len(ranges) > 0 {
			out[weekday] = ranges
		}
	}
	return out, nil
}
