package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rakhadi/go-shop-payments.git/internal/gateway"
	"github.com/rakhadi/go-shop-payments.git/internal/orders"
	"github.com/rakhadi/go-shop-payments.git/internal/payments"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore implements payments.Store with the same locking discipline the
// postgres repo enforces, so service behavior under races is observable
// without a database.
type memStore struct {
	mu    sync.Mutex
	order *orders.Order
	total decimal.Decimal

	byPaymentID map[string]*payments.Payment
	history     []string // gateway payment ids in creation order

	stock        map[string]int
	items        map[string]int // product -> qty reserved by the order
	restoreCount int

	calls        int // any store access; forged callbacks must never reach the store
	failNextSync error
}

func newMemStore(total decimal.Decimal) *memStore {
	return &memStore{
		order:       &orders.Order{ID: "o1", UserID: "u1", Status: orders.StatusNew},
		total:       total,
		byPaymentID: map[string]*payments.Payment{},
		stock:       map[string]int{},
		items:       map[string]int{},
	}
}

func (m *memStore) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if orderID != m.order.ID {
		return nil, orders.ErrNotFound
	}
	cp := *m.order
	return &cp, nil
}

func (m *memStore) OrderTotal(ctx context.Context, orderID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.total, nil
}

func (m *memStore) CreatePending(ctx context.Context, orderID, paymentID string, amount decimal.Decimal) (*payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.order.Paid {
		return nil, payments.ErrOrderAlreadyPaid
	}
	for _, p := range m.byPaymentID {
		if p.OrderID == orderID && p.Status == payments.StatusPending {
			return nil, payments.ErrActivePayment
		}
	}
	now := time.Now().UTC()
	p := &payments.Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		PaymentID: paymentID,
		Amount:    amount,
		Status:    payments.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.byPaymentID[paymentID] = p
	m.history = append(m.history, paymentID)
	cp := *p
	return &cp, nil
}

func (m *memStore) ApplyStatus(ctx context.Context, paymentID string, target payments.Status, errMsg string) (*payments.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.byPaymentID[paymentID]
	if !ok {
		return nil, false, payments.ErrUnknownPayment
	}
	if p.Status == target {
		cp := *p
		return &cp, false, nil
	}
	if !payments.CanTransition(p.Status, target) {
		return nil, false, &payments.InvalidTransitionError{From: p.Status, To: target}
	}
	if m.failNextSync != nil {
		// the whole unit of work rolls back, nothing is mutated
		err := m.failNextSync
		m.failNextSync = nil
		return nil, false, err
	}
	p.Status = target
	p.UpdatedAt = time.Now().UTC()
	switch target {
	case payments.StatusSucceeded:
		m.order.Paid = true
		m.order.Status = orders.StatusConfirmed
	case payments.StatusFailed:
		if errMsg != "" {
			p.ErrorMessage = errMsg
		}
	case payments.StatusRefunded:
		// provider-initiated refund cancels the order like MarkRefunded does
		if m.order.Status != orders.StatusCancelled {
			for pid, qty := range m.items {
				m.stock[pid] += qty
			}
			m.restoreCount++
			m.order.Status = orders.StatusCancelled
		}
		m.order.Paid = false
	}
	cp := *p
	return &cp, true, nil
}

func (m *memStore) MarkRefunded(ctx context.Context, paymentID string) (*payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.byPaymentID[paymentID]
	if !ok {
		return nil, payments.ErrUnknownPayment
	}
	if p.Status != payments.StatusSucceeded {
		return nil, payments.ErrRefundNotAllowed
	}
	p.Status = payments.StatusRefunded
	p.UpdatedAt = time.Now().UTC()
	if m.order.Status != orders.StatusCancelled {
		for pid, qty := range m.items {
			m.stock[pid] += qty
		}
		m.restoreCount++
		m.order.Status = orders.StatusCancelled
	}
	m.order.Paid = false
	cp := *p
	return &cp, nil
}

func (m *memStore) GetByPaymentID(ctx context.Context, paymentID string) (*payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.byPaymentID[paymentID]
	if !ok {
		return nil, payments.ErrUnknownPayment
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) LatestForOrder(ctx context.Context, orderID string) (*payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for i := len(m.history) - 1; i >= 0; i-- {
		p := m.byPaymentID[m.history[i]]
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) snapshot(paymentID string) payments.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byPaymentID[paymentID]
}

// stubGateway lets tests inject gateway failures.
type stubGateway struct {
	gateway.Mock
	createErr error
}

func (s *stubGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, orderID, description string) (payments.CreateResult, error) {
	if s.createErr != nil {
		return payments.CreateResult{}, s.createErr
	}
	return s.Mock.CreatePayment(ctx, amount, orderID, description)
}

func newService(store payments.Store) *payments.Service {
	return &payments.Service{
		Gateway: gateway.Mock{},
		Store:   store,
		Secret:  "dev-secret",
		Name:    "payments-test",
	}
}

func signedPayload(payload map[string]any) (map[string]any, string) {
	return payload, gateway.SignKV(payload, "dev-secret")
}

func TestPaymentLifecycleWithMockGateway(t *testing.T) {
	ctx := context.Background()
	// 3 x 4999.00
	store := newMemStore(decimal.RequireFromString("14997.00"))
	store.items["p1"] = 3
	store.stock["p1"] = 7
	svc := newService(store)

	p, redirect, err := svc.CreatePayment(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, p.Status)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("14997.00")))
	assert.Equal(t, "/orders/mock-pay/?order=o1", redirect)

	payload, sig := signedPayload(map[string]any{"payment_id": p.PaymentID, "status": "succeeded"})
	p2, err := svc.HandleCallback(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusSucceeded, p2.Status)
	assert.True(t, store.order.Paid)
	assert.Equal(t, orders.StatusConfirmed, store.order.Status)

	// identical re-delivery is a no-op
	p3, err := svc.HandleCallback(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusSucceeded, p3.Status)
	assert.True(t, store.order.Paid)

	// refund reverses everything in one unit of work
	p4, err := svc.RefundPayment(ctx, p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusRefunded, p4.Status)
	assert.False(t, store.order.Paid)
	assert.Equal(t, orders.StatusCancelled, store.order.Status)
	assert.Equal(t, 10, store.stock["p1"])
	assert.Equal(t, 1, store.restoreCount)
}

func TestCreatePaymentPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("paid order", func(t *testing.T) {
		store := newMemStore(decimal.NewFromInt(100))
		store.order.Paid = true
		store.order.Status = orders.StatusConfirmed
		_, _, err := newService(store).CreatePayment(ctx, "o1")
		assert.ErrorIs(t, err, payments.ErrOrderAlreadyPaid)
	})

	t.Run("zero amount", func(t *testing.T) {
		store := newMemStore(decimal.Zero)
		_, _, err := newService(store).CreatePayment(ctx, "o1")
		assert.ErrorIs(t, err, payments.ErrZeroAmount)
	})

	t.Run("active payment exists", func(t *testing.T) {
		store := newMemStore(decimal.NewFromInt(100))
		svc := newService(store)
		_, _, err := svc.CreatePayment(ctx, "o1")
		require.NoError(t, err)
		_, _, err = svc.CreatePayment(ctx, "o1")
		assert.ErrorIs(t, err, payments.ErrActivePayment)
	})

	t.Run("unknown order", func(t *testing.T) {
		store := newMemStore(decimal.NewFromInt(100))
		_, _, err := newService(store).CreatePayment(ctx, "nope")
		assert.ErrorIs(t, err, orders.ErrNotFound)
	})
}

func TestCreatePaymentGatewayErrorIsRetrySafe(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(decimal.NewFromInt(100))
	gw := &stubGateway{createErr: &gateway.Error{Provider: "nowpayments", Err: errors.New("timeout")}}
	svc := newService(store)
	svc.Gateway = gw

	_, _, err := svc.CreatePayment(ctx, "o1")
	var gwErr *gateway.Error
	require.True(t, errors.As(err, &gwErr))
	assert.Empty(t, store.byPaymentID, "no payment row may exist after a gateway failure")

	// caller-driven retry succeeds once the gateway recovers
	gw.createErr = nil
	p, _, err := svc.CreatePayment(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, p.Status)
}

func TestConcurrentCreatePayment(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(decimal.NewFromInt(100))
	svc := newService(store)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.CreatePayment(ctx, "o1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, failed int
	for err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, payments.ErrActivePayment)
			failed++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	assert.Len(t, store.byPaymentID, 1)
}

func TestCallbackInvalidSignatureRejectedBeforeLookup(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(decimal.NewFromInt(100))
	svc := newService(store)

	payload := map[string]any{"payment_id": "mock_x", "status": "succeeded"}
	_, err := svc.HandleCallback(ctx, payload, "bad-signature")
	assert.ErrorIs(t, err, payments.ErrInvalidSignature)
	assert.Zero(t, store.calls, "signature failures must not touch storage")
}

func TestCallbackUnknownPaymentID(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(decimal.NewFromInt(100))
	svc := newService(store)

	payload, sig := signedPayload(map[string]any{"payment_id": "ghost", "status": "succeeded"})
	_, err := svc.HandleCallback(ctx, payload, sig)
	assert.ErrorIs(t, err, payments.ErrUnknownPayment)
}

func TestCallbackMissingPaymentID(t *testing.T) {
	ctx := context.Background()
	svc := newService(newMemStore(decimal.NewFromInt(100)))

	payload, sig := signedPayload(map[string]any{"status": "succeeded"})
	_, err := svc.HandleCallback(ctx, payload, sig)
	assert.ErrorIs(t, err, payments.ErrMissingPaymentID)
}

func TestCallbackIllegalTransitions(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		seed   payments.Status
		target string
	}{
		{payments.StatusFailed, "succeeded"},
		{payments.StatusCancelled, "pending"},
		{payments.StatusRefunded, "succeeded"},
	}
	for _, tc := range cases {
		store := newMemStore(decimal.NewFromInt(100))
		store.byPaymentID["pay_1"] = &payments.Payment{
			ID: "id1", OrderID: "o1", PaymentID: "pay_1",
			Amount: decimal.NewFromInt(100), Status: tc.seed,
		}
		store.history = append(store.history, "pay_1")
		svc := newService(store)

		payload, sig := signedPayload(map[string]any{"payment_id": "pay_1", "status": tc.target})
		_, err := svc.HandleCallback(ctx, payload, sig)

		var bad *payments.InvalidTransitionError
		require.True(t, errors.As(err, &bad), "%s -> %s must be rejected", tc.seed, tc.target)
		assert.Equal(t, tc.seed, bad.From)
		assert.Equal(t, tc.seed, store.snapshot("pay_1").Status, "rejected transition must not mutate")
	}
}

func TestCallbackRecordsFailureMessage(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(decimal.NewFromInt(100))
	svc := newService(store)

	p, _, err := svc.CreatePayment(ctx, "o1")
	require.NoError(t, err)

	payload, sig := signedPayload(map[string]any{
		"payment_id":    p.PaymentID,
		"status":        "failed",
		"error_message": "insufficient funds",
	})
	p2, err := svc.HandleCallback(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusFailed, p2.Status)
	assert.Equal(t, "insufficient funds", p2.ErrorMessage)
	assert.False(t, store.order.Paid)
}

func TestCallbackMidTransactionFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(decimal.NewFromInt(100))
	svc := newService(store)

	p, _, err := svc.CreatePayment(ctx, "o1")
	require.NoError(t, err)

	store.failNextSync = errors.New("connection reset during order sync")
	payload, sig := signedPayload(map[string]any{"payment_id": p.PaymentID, "status": "succeeded"})
	_, err = svc.HandleCallback(ctx, payload, sig)
	require.Error(t, err)

	assert.Equal(t, payments.StatusPending, store.snapshot(p.PaymentID).Status)
	assert.False(t, store.order.Paid)
	assert.Equal(t, orders.StatusNew, store.order.Status)

	// the callback can be re-delivered and applied cleanly afterwards
	p2, err := svc.HandleCallback(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusSucceeded, p2.Status)
}

func TestRefundedCallbackCancelsOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(decimal.RequireFromString("9998.00"))
	store.items["p1"] = 2
	store.stock["p1"] = 8
	svc := newService(store)

	p, _, err := svc.CreatePayment(ctx, "o1")
	require.NoError(t, err)

	payload, sig := signedPayload(map[string]any{"payment_id": p.PaymentID, "status": "succeeded"})
	_, err = svc.HandleCallback(ctx, payload, sig)
	require.NoError(t, err)
	require.True(t, store.order.Paid)

	// the provider reports the refund; the order must not stay paid
	refunded, sig2 := signedPayload(map[string]any{"payment_id": p.PaymentID, "status": "refunded"})
	p2, err := svc.HandleCallback(ctx, refunded, sig2)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusRefunded, p2.Status)
	assert.False(t, store.order.Paid)
	assert.Equal(t, orders.StatusCancelled, store.order.Status)
	assert.Equal(t, 10, store.stock["p1"])
	assert.Equal(t, 1, store.restoreCount)

	// re-delivery is a no-op, no double restore
	p3, err := svc.HandleCallback(ctx, refunded, sig2)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusRefunded, p3.Status)
	assert.Equal(t, 1, store.restoreCount)
}

func TestRefundRequiresSucceededPayment(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(decimal.NewFromInt(100))
	svc := newService(store)

	p, _, err := svc.CreatePayment(ctx, "o1")
	require.NoError(t, err)

	_, err = svc.RefundPayment(ctx, p.PaymentID)
	assert.ErrorIs(t, err, payments.ErrRefundNotAllowed)

	_, err = svc.RefundPayment(ctx, "ghost")
	assert.ErrorIs(t, err, payments.ErrUnknownPayment)
}

func TestPaidIffSucceededWithoutLaterRefund(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(decimal.NewFromInt(100))
	svc := newService(store)

	p, _, err := svc.CreatePayment(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, store.order.Paid)

	payload, sig := signedPayload(map[string]any{"payment_id": p.PaymentID, "status": "succeeded"})
	_, err = svc.HandleCallback(ctx, payload, sig)
	require.NoError(t, err)
	assert.True(t, store.order.Paid)

	_, err = svc.RefundPayment(ctx, p.PaymentID)
	require.NoError(t, err)
	assert.False(t, store.order.Paid)
}
