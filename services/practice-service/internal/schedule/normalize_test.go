package schedule

import "testing"

func TestFoldGridMergesConsecutiveHours(t *testing.T) {
	out, err := FoldGrid(map[int][]int{
		1: {9, 10, 11},
	})
	if err != nil {
		t.Fatalf("FoldGrid failed: %v", err)
	}
	got := out[1]
	if len(got) != 1 {
		t.Fatalf("expected one range, got %v", got)
	}
	if got[0].StartMinute != 540 || got[0].EndMinute != 720 {
		t.Fatalf("expected 09:00-12:00, got %v", got[0])
	}
}

func TestFoldGridKeepsGapsClosed(t *testing.T) {
	out, err := FoldGrid(map[int][]int{
		2: {9, 10, 14, 15},
	})
	if err != nil {
		t.Fatalf("FoldGrid failed: %v", err)
	}
	got := out[2]
	if len(got) != 2 {
		t.Fatalf("expected two disjoint ranges, got %v", got)
	}
	if got[0].StartMinute != 540 || got[0].EndMinute != 660 {
		t.Fatalf("expected 09:00-11:00, got %v", got[0])
	}
	if got[1].StartMinute != 840 || got[1].EndMinute != 960 {
		t.Fatalf("expected 14:00-16:00, got %v", got[1])
	}
}

func TestFoldGridIgnoresDuplicatesAndUnorderedInput(t *testing.T) {
	out, err := FoldGrid(map[int][]int{
		3: {15, 9, 9, 10, 15},
	})
	if err != nil {
		t.Fatalf("FoldGrid failed: %v", err)
	}
	got := out[3]
	if len(got) != 2 {
		t.Fatalf("expected two ranges, got %v", got)
	}
	if got[0].StartMinute != 540 || got[0].EndMinute != 660 {
		t.Fatalf("unexpected first range: %v", got[0])
	}
	if got[1].StartMinute != 900 || got[1].EndMinute != 960 {
		t.Fatalf("unexpected second range: %v", got[1])
	}
}

func TestFoldGridEmptyDayProducesNoRanges(t *testing.T) {
	out, err := FoldGrid(map[int][]int{
		4: {},
	})
	if err != nil {
		t.Fatalf("FoldGrid failed: %v", err)
	}
	if _, ok := out[4]; ok {
		t.Fatalf("expected no entry for empty day, got %v", out[4])
	}
}

func TestFoldGridRejectsBadInput(t *testing.T) {
	if _, err := FoldGrid(map[int][]int{7: {9}}); err == nil {
		t.Fatal("expected error for weekday 7")
	}
	if _, err := FoldGrid(map[int][]int{-1: {9}}); err == nil {
		t.Fatal("expected error for weekday -1")
	}
	if _, err := FoldGrid(map[int][]int{1: {24}}); err == nil {
		t.Fatal("expected error for hour 24")
	}
	if _, err := FoldGrid(map[int][]int{1: {-1}}); err == nil {
		t.Fatal("expected error for hour -1")
	}
}
