package redisx

import "time"

const (
	// Cache order status: order_status:{order_id} -> {"status": "...", "paid": ...}
	KeyOrderStatus = "order_status:%s"

	// Cache payment status per order: payment_status:{order_id} -> JSON blob
	KeyPaymentStatus = "payment_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
