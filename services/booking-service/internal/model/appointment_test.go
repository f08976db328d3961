package model

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from string
		to   string
		want bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusNoShow, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusConfirmed, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminalStatusesRejectAllTransitions(t *testing.T) {
	terminal := []string{StatusCancelled, StatusCompleted, StatusNoShow}
	targets := []string{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow}
	for _, from := range terminal {
		if !IsTerminal(from) {
			t.Fatalf("%s should be terminal", from)
		}
		for _, to := range targets {
			if CanTransition(from, to) {
				t.Fatalf("terminal status %s must reject transition to %s", from, to)
			}
		}
	}
}
