package payments

import (
	"context"

	"github.com/rakhadi/go-shop-payments.git/internal/orders"
	"github.com/shopspring/decimal"
)

// Store is the persistence contract for payments plus the order rows they
// keep in sync. Implemented by Repo (postgres) and by in-memory fakes in
// tests. Every method that reads-then-writes does so in one atomic unit of
// work with the affected rows locked, payment row first, then order row.
type Store interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)

	// OrderTotal sums price*quantity over the order's items.
	OrderTotal(ctx context.Context, orderID string) (decimal.Decimal, error)

	// CreatePending inserts a new pending payment. It re-validates "order not
	// paid" and "no pending payment" under the order row lock so exactly one
	// of two concurrent creates can succeed.
	CreatePending(ctx context.Context, orderID, paymentID string, amount decimal.Decimal) (*Payment, error)

	// ApplyStatus transitions the payment identified by the gateway-issued id.
	// applied=false means the payment already had the target status (idempotent
	// no-op). A succeeded target marks the order paid+confirmed in the same
	// transaction; a refunded target cancels the order and restores its stock
	// just like MarkRefunded; a failed target records errMsg. Unknown ids return
	// ErrUnknownPayment, illegal transitions *InvalidTransitionError; in both
	// cases nothing is written.
	ApplyStatus(ctx context.Context, paymentID string, target Status, errMsg string) (p *Payment, applied bool, err error)

	// MarkRefunded transitions a succeeded payment to refunded and, in the same
	// transaction, cancels the order and restores its stock.
	MarkRefunded(ctx context.Context, paymentID string) (*Payment, error)

	// GetByPaymentID looks a payment up by its gateway-issued id.
	GetByPaymentID(ctx context.Context, paymentID string) (*Payment, error)

	// LatestForOrder returns the most recent payment or nil if none exists.
	LatestForOrder(ctx context.Context, orderID string) (*Payment, error)
}
