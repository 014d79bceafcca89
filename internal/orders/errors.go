package orders

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("order not found")

type ShortLine struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError rejects a whole order; every short line is reported.
type InsufficientStockError struct {
	Lines []ShortLine
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", l.ProductID, l.Requested, l.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order transition %s -> %s is not allowed", e.From, e.To)
}
