package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Delivery outcome events, for dashboards and audit.
const (
	EventNotificationSent   = "notification.sent.v1"
	EventNotificationFailed = "notification.failed.v1"
)
