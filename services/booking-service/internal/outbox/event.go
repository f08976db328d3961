package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Events emitted by booking-service. Consumed by notification-service.
const (
	EventAppointmentRequested = "booking.appointment.requested.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventReminderRequested    = "booking.reminder.requested.v1"
	EventPaymentSucceeded     = "booking.payment.succeeded.v1"
)
