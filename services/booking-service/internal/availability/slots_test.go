package availability

import (
	"testing"
	"time"
)

func availableStarts(slots []Slot) []time.Time {
	var out []time.Time
	for _, s := range slots {
		if s.Available {
			out = append(out, s.Start)
		}
	}
	return out
}

func TestSlots_Basic(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	windowStart := day.Add(9 * time.Hour)
	windowEnd := day.Add(10 * time.Hour)

	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	slots := Slots(windowStart, windowEnd, 15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	open := availableStarts(slots)
	if len(open) != 2 {
		t.Fatalf("expected 2 available slots, got %d", len(open))
	}
	if !open[0].Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first available slot 09:00, got %s", open[0].Format(time.RFC3339))
	}
	if !open[1].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second available slot 09:45, got %s", open[1].Format(time.RFC3339))
	}
}

func TestSlots_Deterministic(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: day.Add(11 * time.Hour), End: day.Add(12 * time.Hour)},
	}

	first := Slots(day.Add(9*time.Hour), day.Add(17*time.Hour), time.Hour, time.Hour, busy, day)
	second := Slots(day.Add(9*time.Hour), day.Add(17*time.Hour), time.Hour, time.Hour, busy, day)
	if len(first) != len(second) {
		t.Fatalf("slot counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("slot %d differs between runs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestSlots_HourlyBookingBlocksExactlyItsSlot(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: day.Add(11 * time.Hour), End: day.Add(12 * time.Hour)},
	}

	slots := Slots(day.Add(9*time.Hour), day.Add(17*time.Hour), time.Hour, time.Hour, busy, day)
	if len(slots) != 8 {
		t.Fatalf("expected 8 hourly slots, got %d", len(slots))
	}
	for _, s := range slots {
		blocked := s.Start.Equal(day.Add(11 * time.Hour))
		if s.Available == blocked {
			t.Fatalf("slot %s: available=%v, want %v", s.Start.Format("15:04"), s.Available, !blocked)
		}
	}
}

func TestSlots_StraddlingBookingBlocksBothSlots(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	// 11:30-12:30 overlaps both the 11:00 and the 12:00 hourly slot.
	busy := []Interval{
		{Start: day.Add(11*time.Hour + 30*time.Minute), End: day.Add(12*time.Hour + 30*time.Minute)},
	}

	slots := Slots(day.Add(9*time.Hour), day.Add(17*time.Hour), time.Hour, time.Hour, busy, day)
	for _, s := range slots {
		blocked := s.Start.Equal(day.Add(11*time.Hour)) || s.Start.Equal(day.Add(12*time.Hour))
		if s.Available == blocked {
			t.Fatalf("slot %s: available=%v, want %v", s.Start.Format("15:04"), s.Available, !blocked)
		}
	}
}

func TestSlots_BookingEndingAtSlotStartDoesNotBlock(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)},
	}

	slots := Slots(day.Add(9*time.Hour), day.Add(17*time.Hour), time.Hour, time.Hour, busy, day)
	for _, s := range slots {
		if s.Start.Equal(day.Add(11 * time.Hour)) && !s.Available {
			t.Fatal("11:00 slot must stay open when the booking ends at 11:00")
		}
	}
}

func TestSlots_MarksPastSlotsUnavailable(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	now := day.Add(9*time.Hour + 31*time.Minute)

	slots := Slots(day.Add(9*time.Hour), day.Add(10*time.Hour), 15*time.Minute, 15*time.Minute, nil, now)
	open := availableStarts(slots)
	// 09:00, 09:15, 09:30 start in the past. 09:45 is future.
	if len(open) != 1 {
		t.Fatalf("expected 1 available slot, got %d", len(open))
	}
	if !open[0].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected slot 09:45, got %s", open[0].Format(time.RFC3339))
	}
}

func TestSlots_EmptyOrTightWindow(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	if got := Slots(day, day, time.Hour, time.Hour, nil, day); got != nil {
		t.Fatalf("expected nil for empty window, got %v", got)
	}
	if got := Slots(day, day.Add(30*time.Minute), time.Hour, time.Hour, nil, day); got != nil {
		t.Fatalf("expected nil when duration exceeds window, got %v", got)
	}
}
