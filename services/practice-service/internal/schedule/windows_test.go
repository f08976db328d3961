package schedule

import (
	"testing"
	"time"
)

func utc(h, m int) time.Time {
	return time.Date(2026, 9, 1, h, m, 0, 0, time.UTC)
}

func TestResolveWeeklyRanges(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	weekly := []Range{
		{StartMinute: 540, EndMinute: 660},
		{StartMinute: 840, EndMinute: 960},
	}

	got := Resolve(day, weekly, nil, false, nil)
	if len(got) != 2 {
		t.Fatalf("expected two windows, got %v", got)
	}
	if !got[0].Start.Equal(utc(9, 0)) || !got[0].End.Equal(utc(11, 0)) {
		t.Fatalf("unexpected first window: %v", got[0])
	}
	if !got[1].Start.Equal(utc(14, 0)) || !got[1].End.Equal(utc(16, 0)) {
		t.Fatalf("unexpected second window: %v", got[1])
	}
}

func TestResolveOverrideReplacesWeekly(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	weekly := []Range{{StartMinute: 540, EndMinute: 1020}}
	override := []Range{{StartMinute: 720, EndMinute: 840}}

	got := Resolve(day, weekly, override, true, nil)
	if len(got) != 1 {
		t.Fatalf("expected one window, got %v", got)
	}
	if !got[0].Start.Equal(utc(12, 0)) || !got[0].End.Equal(utc(14, 0)) {
		t.Fatalf("override should replace weekly entirely, got %v", got[0])
	}
}

func TestResolveOverrideCanCloseDay(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	weekly := []Range{{StartMinute: 540, EndMinute: 1020}}

	got := Resolve(day, weekly, nil, true, nil)
	if len(got) != 0 {
		t.Fatalf("expected closed day, got %v", got)
	}
}

func TestResolveSubtractsTimeOff(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	weekly := []Range{{StartMinute: 540, EndMinute: 1020}}
	blocks := []Interval{
		{Start: utc(12, 0), End: utc(13, 0)},
		{Start: utc(12, 30), End: utc(13, 30)},
		{Start: utc(8, 0), End: utc(9, 30)},
	}

	got := Resolve(day, weekly, nil, false, blocks)
	if len(got) != 2 {
		t.Fatalf("expected two windows after subtraction, got %v", got)
	}
	if !got[0].Start.Equal(utc(9, 30)) || !got[0].End.Equal(utc(12, 0)) {
		t.Fatalf("unexpected first window: %v", got[0])
	}
	if !got[1].Start.Equal(utc(13, 30)) || !got[1].End.Equal(utc(17, 0)) {
		t.Fatalf("unexpected second window: %v", got[1])
	}
}

func TestResolveTimeOffCoveringWindowRemovesIt(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	weekly := []Range{{StartMinute: 540, EndMinute: 600}}
	blocks := []Interval{{Start: utc(8, 0), End: utc(11, 0)}}

	if got := Resolve(day, weekly, nil, false, blocks); len(got) != 0 {
		t.Fatalf("expected no windows, got %v", got)
	}
}

func TestResolveConvertsTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}
	// 2026-09-01 is EDT (UTC-4), so 09:00 local is 13:00 UTC.
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, loc)
	weekly := []Range{{StartMinute: 540, EndMinute: 600}}

	got := Resolve(day, weekly, nil, false, nil)
	if len(got) != 1 {
		t.Fatalf("expected one window, got %v", got)
	}
	if !got[0].Start.Equal(time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 13:00 UTC start, got %v", got[0].Start)
	}
}
