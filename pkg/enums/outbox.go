package enums

// OutboxEventType enumerates domain events emitted through the outbox.
type OutboxEventType string

const (
	EventOccupancyChanged     OutboxEventType = "occupancy.changed"
	EventReservationCreated   OutboxEventType = "reservation.created"
	EventReservationCancelled OutboxEventType = "reservation.cancelled"
)

// OutboxAggregateType names the aggregate an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateInventoryItem OutboxAggregateType = "inventory_item"
	AggregateReservation   OutboxAggregateType = "reservation"
)

// OutboxDLQErrorReason classifies why an event landed in the dead-letter table.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
