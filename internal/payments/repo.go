package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rakhadi/go-shop-payments.git/internal/orders"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return (&orders.Repo{DB: r.DB}).GetOrder(ctx, orderID)
}

func (r *Repo) OrderTotal(ctx context.Context, orderID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(price * quantity), 0) FROM order_items WHERE order_id=$1`,
		orderID).Scan(&total)
	return total, err
}

// CreatePending re-checks the create preconditions under the order row lock,
// so two concurrent creates serialize and the loser gets a ValidationError.
func (r *Repo) CreatePending(ctx context.Context, orderID, paymentID string, amount decimal.Decimal) (*Payment, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var paid bool
	err = tx.QueryRow(ctx, `SELECT paid FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&paid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, ErrOrderAlreadyPaid
	}

	var pending bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM payments WHERE order_id=$1 AND status=$2)`,
		orderID, string(StatusPending)).Scan(&pending); err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrActivePayment
	}

	now := time.Now().UTC()
	p := &Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		PaymentID: paymentID,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO payments(id, order_id, payment_id, amount, status)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.OrderID, p.PaymentID, p.Amount, string(p.Status)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// ApplyStatus drives the state machine inside one transaction. Lock order is
// fixed: payment row first, then the order row (inside ConfirmPaidInTx).
func (r *Repo) ApplyStatus(ctx context.Context, paymentID string, target Status, errMsg string) (*Payment, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := lockPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, false, err
	}
	if p.Status == target {
		return p, false, nil // at-least-once delivery, nothing to do
	}
	if !CanTransition(p.Status, target) {
		return nil, false, &InvalidTransitionError{From: p.Status, To: target}
	}

	p.Status = target
	p.UpdatedAt = time.Now().UTC()
	if target == StatusFailed && errMsg != "" {
		p.ErrorMessage = errMsg
	}
	if _, err := tx.Exec(ctx, `
		UPDATE payments SET status=$2, error_message=$3, updated_at=now() WHERE id=$1`,
		p.ID, string(p.Status), p.ErrorMessage); err != nil {
		return nil, false, err
	}

	switch target {
	case StatusSucceeded:
		if err := orders.ConfirmPaidInTx(ctx, tx, p.OrderID); err != nil {
			return nil, false, err
		}
	case StatusRefunded:
		// provider-initiated refund; the order must not stay paid
		if _, err := orders.CancelInTx(ctx, tx, p.OrderID); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// MarkRefunded moves the payment to refunded and cancels the order (which
// restores its stock) in the same unit of work.
func (r *Repo) MarkRefunded(ctx context.Context, paymentID string) (*Payment, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := lockPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusSucceeded {
		return nil, ErrRefundNotAllowed
	}

	p.Status = StatusRefunded
	p.UpdatedAt = time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		UPDATE payments SET status=$2, updated_at=now() WHERE id=$1`,
		p.ID, string(p.Status)); err != nil {
		return nil, err
	}

	if _, err := orders.CancelInTx(ctx, tx, p.OrderID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repo) GetByPaymentID(ctx context.Context, paymentID string) (*Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx, selectPayment+` WHERE payment_id=$1`, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownPayment
	}
	return p, err
}

func (r *Repo) LatestForOrder(ctx context.Context, orderID string) (*Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx,
		selectPayment+` WHERE order_id=$1 ORDER BY created_at DESC LIMIT 1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

const selectPayment = `
	SELECT id, order_id, payment_id, amount, status, COALESCE(error_message,''), created_at, updated_at
	FROM payments`

func lockPayment(ctx context.Context, tx pgx.Tx, paymentID string) (*Payment, error) {
	p, err := scanPayment(tx.QueryRow(ctx, selectPayment+` WHERE payment_id=$1 FOR UPDATE`, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownPayment
	}
	return p, err
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var status string
	if err := row.Scan(&p.ID, &p.OrderID, &p.PaymentID, &p.Amount, &status,
		&p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}
