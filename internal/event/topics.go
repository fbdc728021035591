package event

const (
	TopicPaymentConfirmed = "payment.confirmed"
	TopicPaymentFailed    = "payment.failed"
	TopicOrderStatus      = "order.status.changed"
)

// Partition key = entity id so every event for one request/order keeps its order.
func PartitionKey(id string) []byte { return []byte(id) }
