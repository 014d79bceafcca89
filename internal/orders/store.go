package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

type LineInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"qty"`
}

type PlaceOrderInput struct {
	UserID     string
	SessionKey string
	FirstName  string
	LastName   string
	Email      string
	Address    string
	City       string
	Lines      []LineInput
}

// Store is the persistence contract for orders and stock. Implemented by
// Repo (postgres) and by in-memory fakes in tests.
type Store interface {
	// PlaceOrder checks every line against current stock, and either creates
	// the order, its items and the stock decrements atomically, or rejects the
	// whole order with *InsufficientStockError.
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, decimal.Decimal, error)

	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// Cancel moves the order into cancelled and restores reserved stock.
	// Cancelling an already-cancelled order is a no-op; restoration fires only
	// on the transition edge.
	Cancel(ctx context.Context, orderID string) (*Order, error)

	ListStock(ctx context.Context) ([]Stock, error)
}
