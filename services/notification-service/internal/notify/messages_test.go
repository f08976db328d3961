package notify

import (
	"strings"
	"testing"
)

func TestReminderMessage(t *testing.T) {
	subject, body := ReminderMessage("appointment-1", "2026-09-10T15:00:00Z", TemplateData{
		"patient_name": "Ana",
		"start_time":   "2026-09-10T16:00:00Z",
	})
	if subject != "Appointment reminder" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "Hi Ana.") {
		t.Fatalf("body missing greeting: %q", body)
	}
	if !strings.Contains(body, "2026-09-10T16:00:00Z") {
		t.Fatalf("body should prefer start_time over remind_at: %q", body)
	}
}

func TestReminderMessageFallsBackToRemindAt(t *testing.T) {
	_, body := ReminderMessage("appointment-1", "2026-09-10T15:00:00Z", nil)
	if !strings.Contains(body, "2026-09-10T15:00:00Z") {
		t.Fatalf("body should fall back to remind_at: %q", body)
	}
}

func TestAppointmentMessageKinds(t *testing.T) {
	cases := map[string]string{
		"requested": "Booking received",
		"confirmed": "Appointment confirmed",
		"cancelled": "Appointment cancelled",
		"other":     "Appointment update",
	}
	for kind, want := range cases {
		subject, _ := AppointmentMessage(kind, "appointment-1", "2026-09-10T16:00:00Z", nil)
		if subject != want {
			t.Fatalf("%s: subject = %q, want %q", kind, subject, want)
		}
	}
}

func TestAppointmentMessageCancelledIncludesReason(t *testing.T) {
	_, body := AppointmentMessage("cancelled", "appointment-1", "2026-09-10T16:00:00Z", TemplateData{"reason": "sick"})
	if !strings.Contains(body, "Reason: sick.") {
		t.Fatalf("body missing reason: %q", body)
	}
}
