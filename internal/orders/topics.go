package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicOrderCancelled     = "order.cancelled"
	TopicOrderEvents        = "order.events" // catch-all
)

// Topics is every routing key a consumer group subscribes to.
func Topics() []string {
	return []string{TopicOrderCreated, TopicOrderStatusChanged, TopicOrderCancelled, TopicOrderEvents}
}

func RoutingKey(ev Event) string {
	switch ev.(type) {
	case OrderCreated, *OrderCreated:
		return TopicOrderCreated
	case OrderStatusChanged, *OrderStatusChanged:
		return TopicOrderStatusChanged
	case OrderCancelled, *OrderCancelled:
		return TopicOrderCancelled
	default:
		return TopicOrderEvents
	}
}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
