package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one attempt to pay an order. An order may accumulate several
// payments over time but holds at most one pending payment at any moment.
// Rows are never deleted; they are the audit trail.
type Payment struct {
	ID           string
	OrderID      string
	PaymentID    string // gateway-issued id, globally unique
	Amount       decimal.Decimal
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
