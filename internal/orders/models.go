package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID         string
	UserID     string // empty for anonymous orders
	SessionKey string // anonymous-session marker when UserID is empty
	FirstName  string
	LastName   string
	Email      string
	Address    string
	City       string
	Paid       bool
	Status     Status // see status.go
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OwnedBy reports whether the given caller identity owns the order.
func (o *Order) OwnedBy(userID, sessionKey string) bool {
	if o.UserID != "" {
		return o.UserID == userID
	}
	return o.SessionKey != "" && o.SessionKey == sessionKey
}

// OrderItem captures price at purchase time; immutable after creation.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

func (i OrderItem) Cost() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Stock struct {
	ProductID   string
	Quantity    int
	IsAvailable bool
	UpdatedAt   time.Time
}
