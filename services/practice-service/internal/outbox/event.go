package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (production-style: event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// EventServiceUpserted is consumed by booking-service to keep its local
// service catalog cache current.
const EventServiceUpserted = "practice.service.upserted.v1"
