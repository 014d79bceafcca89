package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

// PlaceOrder locks stock per product (FOR UPDATE) -> checks every line ->
// decrements + inserts order/items. Any shortfall rejects the whole order;
// nothing is committed (rollback via defer).
func (r *Repo) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, decimal.Decimal, error) {
	if len(in.Lines) == 0 {
		return nil, decimal.Zero, errors.New("order has no items")
	}
	for _, ln := range in.Lines {
		if ln.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("invalid qty for product %s", ln.ProductID)
		}
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, decimal.Zero, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// price snapshot from products (never trust the client)
	ids := make([]string, 0, len(in.Lines))
	for _, ln := range in.Lines {
		ids = append(ids, ln.ProductID)
	}
	rows, err := tx.Query(ctx, `SELECT id, price FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	prices := map[string]decimal.Decimal{}
	for rows.Next() {
		var id string
		var price decimal.Decimal
		if err := rows.Scan(&id, &price); err != nil {
			rows.Close()
			return nil, decimal.Zero, err
		}
		prices[id] = price
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, decimal.Zero, err
	}

	var shorts []ShortLine
	for _, ln := range in.Lines {
		if _, ok := prices[ln.ProductID]; !ok {
			return nil, decimal.Zero, fmt.Errorf("product not found: %s", ln.ProductID)
		}
		var qty int
		var available bool
		err := tx.QueryRow(ctx,
			`SELECT quantity, is_available FROM stock WHERE product_id=$1 FOR UPDATE`,
			ln.ProductID).Scan(&qty, &available)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if !available {
			qty = 0
		}
		if qty < ln.Quantity {
			shorts = append(shorts, ShortLine{ProductID: ln.ProductID, Requested: ln.Quantity, Available: qty})
		}
	}
	if len(shorts) > 0 {
		return nil, decimal.Zero, &InsufficientStockError{Lines: shorts} // rollback via defer
	}

	for _, ln := range in.Lines {
		if _, err := tx.Exec(ctx, `
			UPDATE stock SET quantity = quantity - $2,
			       is_available = (quantity - $2 > 0),
			       updated_at = now()
			WHERE product_id=$1`, ln.ProductID, ln.Quantity); err != nil {
			return nil, decimal.Zero, err
		}
	}

	now := time.Now().UTC()
	o := &Order{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		SessionKey: in.SessionKey,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Email:      in.Email,
		Address:    in.Address,
		City:       in.City,
		Status:     StatusNew,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, session_key, first_name, last_name, email, address, city, paid, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,$9)`,
		o.ID, nullable(o.UserID), nullable(o.SessionKey), o.FirstName, o.LastName, o.Email, o.Address, o.City, string(o.Status)); err != nil {
		return nil, decimal.Zero, err
	}

	total := decimal.Zero
	for _, ln := range in.Lines {
		item := OrderItem{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: ln.ProductID,
			Price:     prices[ln.ProductID],
			Quantity:  ln.Quantity,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, price, quantity)
			VALUES ($1,$2,$3,$4,$5)`,
			item.ID, item.OrderID, item.ProductID, item.Price, item.Quantity); err != nil {
			return nil, decimal.Zero, err
		}
		total = total.Add(item.Cost())
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, decimal.Zero, err
	}
	return o, total, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		SELECT id, COALESCE(user_id,''), COALESCE(session_key,''), first_name, last_name,
		       email, address, city, paid, status, created_at, updated_at
		FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *Repo) Cancel(ctx context.Context, orderID string) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := CancelInTx(ctx, tx, orderID); err != nil {
		return nil, err
	}
	o, err := scanOrder(tx.QueryRow(ctx, `
		SELECT id, COALESCE(user_id,''), COALESCE(session_key,''), first_name, last_name,
		       email, address, city, paid, status, created_at, updated_at
		FROM orders WHERE id=$1`, orderID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) ListStock(ctx context.Context) ([]Stock, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, quantity, is_available, updated_at
		FROM stock ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stock
	for rows.Next() {
		var s Stock
		if err := rows.Scan(&s.ProductID, &s.Quantity, &s.IsAvailable, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CancelInTx moves an order into cancelled and restores its stock inside the
// caller's transaction. Restoration fires only on the transition edge: an
// already-cancelled order is left untouched (restored=false). This replaces the
// save-hook the storefront used to rely on with one explicit, reusable function;
// the refund path runs it inside the same unit of work as the payment update.
func CancelInTx(ctx context.Context, tx pgx.Tx, orderID string) (restored bool, err error) {
	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if Status(status) == StatusCancelled {
		return false, nil // already cancelled, do not restore twice
	}
	if !CanTransition(Status(status), StatusCancelled) {
		return false, &InvalidTransitionError{From: Status(status), To: StatusCancelled}
	}

	rows, err := tx.Query(ctx, `SELECT product_id, quantity FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return false, err
	}
	type line struct {
		pid string
		qty int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.pid, &l.qty); err != nil {
			rows.Close()
			return false, err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, l := range lines {
		// lock then restore, same order as the reservation path
		if _, err := tx.Exec(ctx, `SELECT quantity FROM stock WHERE product_id=$1 FOR UPDATE`, l.pid); err != nil {
			return false, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE stock SET quantity = quantity + $2, is_available = true, updated_at = now()
			WHERE product_id=$1`, l.pid, l.qty); err != nil {
			return false, err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, paid=false, updated_at=now() WHERE id=$1`,
		orderID, string(StatusCancelled)); err != nil {
		return false, err
	}
	return true, nil
}

// ConfirmPaidInTx marks an order paid after a succeeded payment, inside the
// caller's transaction. Status moves to confirmed only from new.
func ConfirmPaidInTx(ctx context.Context, tx pgx.Tx, orderID string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	next := Status(status)
	if CanTransition(next, StatusConfirmed) {
		next = StatusConfirmed
	}
	_, err = tx.Exec(ctx, `UPDATE orders SET paid=true, status=$2, updated_at=now() WHERE id=$1`,
		orderID, string(next))
	return err
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	if err := row.Scan(&o.ID, &o.UserID, &o.SessionKey, &o.FirstName, &o.LastName,
		&o.Email, &o.Address, &o.City, &o.Paid, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
