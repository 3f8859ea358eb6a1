package outbox

// Topic names double as Kafka topic names (event per topic).
const (
	TopicAppointmentBooked    = "booking.appointment.booked.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
	TopicPaymentConfirmed     = "booking.payment.confirmed.v1"
	TopicPaymentFailed        = "booking.payment.failed.v1"
	TopicRecurringDeactivated = "booking.recurring.deactivated.v1"
)

// Event is the domain event envelope written to the outbox table in the same
// transaction as the state change it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
