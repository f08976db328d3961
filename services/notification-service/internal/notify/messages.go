package notify

import (
	"fmt"
	"strings"
)

// TemplateData is the free-form payload carried with reminder and
// appointment events.
type TemplateData map[string]any

func (t TemplateData) str(key string) string {
	if v, ok := t[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// ReminderMessage renders the reminder sent ahead of an appointment.
func ReminderMessage(appointmentID, remindAt string, data TemplateData) (subject, body string) {
	subject = "Appointment reminder"
	when := data.str("start_time")
	if when == "" {
		when = remindAt
	}
	body = fmt.Sprintf("Reminder: your therapy session %s starts at %s.", appointmentID, when)
	if name := data.str("patient_name"); name != "" {
		body = fmt.Sprintf("Hi %s. %s", name, body)
	}
	return subject, body
}

// AppointmentMessage renders the immediate notification for a lifecycle
// event. kind is requested, confirmed or cancelled.
func AppointmentMessage(kind, appointmentID, startTime string, data TemplateData) (subject, body string) {
	switch kind {
	case "requested":
		subject = "Booking received"
		body = fmt.Sprintf("We received your booking %s for %s. Your therapist will confirm it shortly.", appointmentID, startTime)
	case "confirmed":
		subject = "Appointment confirmed"
		body = fmt.Sprintf("Your appointment %s on %s is confirmed.", appointmentID, startTime)
	case "cancelled":
		subject = "Appointment cancelled"
		body = fmt.Sprintf("Your appointment %s on %s was cancelled.", appointmentID, startTime)
		if reason := data.str("reason"); reason != "" {
			body += " Reason: " + reason + "."
		}
	default:
		subject = "Appointment update"
		body = fmt.Sprintf("Your appointment %s on %s was updated.", appointmentID, startTime)
	}
	return subject, body
}
