package payments

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentCreated   = "PaymentCreated"
	EventPaymentSucceeded = "PaymentSucceeded"
	EventPaymentFailed    = "PaymentFailed"
	EventPaymentCancelled = "PaymentCancelled"
	EventPaymentRefunded  = "PaymentRefunded"
	EventOrderCancelled   = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g. "payments-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload types per event ----

type PaymentEventPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	// RawStatus keeps the provider's own vocabulary for audit; interim
	// provider states all collapse to pending internally.
	RawStatus    string `json:"raw_status,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID       string `json:"order_id"`
	StockRestored bool   `json:"stock_restored"`
}
