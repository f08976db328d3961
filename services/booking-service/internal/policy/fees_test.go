package policy

import (
	"testing"
	"time"

	"github.com/sessionly-app/sessionly/libs/auth"
)

func TestCancellationFee(t *testing.T) {
	start := time.Date(2026, 9, 10, 15, 0, 0, 0, time.UTC)

	cases := []struct {
		name          string
		role          string
		deadlineHours int
		price         int64
		now           time.Time
		want          int64
	}{
		{"patient outside deadline", auth.RolePatient, 24, 9000, start.Add(-48 * time.Hour), 0},
		{"patient inside deadline", auth.RolePatient, 24, 9000, start.Add(-2 * time.Hour), 9000},
		{"patient exactly at deadline", auth.RolePatient, 24, 9000, start.Add(-24 * time.Hour), 9000},
		{"patient no deadline configured", auth.RolePatient, 0, 9000, start.Add(-1 * time.Hour), 0},
		{"patient free service", auth.RolePatient, 24, 0, start.Add(-1 * time.Hour), 0},
		{"therapist inside deadline", auth.RoleTherapist, 24, 9000, start.Add(-1 * time.Hour), 0},
		{"admin inside deadline", auth.RoleAdmin, 24, 9000, start.Add(-1 * time.Hour), 0},
	}
	for _, c := range cases {
		if got := CancellationFee(c.role, start, c.deadlineHours, c.price, c.now); got != c.want {
			t.Fatalf("%s: fee = %d, want %d", c.name, got, c.want)
		}
	}
}
