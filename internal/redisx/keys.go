package redisx

import "time"

const (
	// Cache status order: order_status:{tenant}:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s:%s"

	// Dedup event processing: dedup:{service}:{tenant}:{event_id}
	KeyDedup = "dedup:%s:%s:%s"

	// Pub/sub channel notifikasi per tenant
	ChannelNotifications = "notifications:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
