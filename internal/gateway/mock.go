package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rakhadi/go-shop-payments.git/internal/payments"
	"github.com/shopspring/decimal"
)

// Mock is the no-network gateway used in tests and development. Deterministic
// shape, instant responses, internal status vocabulary on the wire.
type Mock struct{}

var _ payments.Gateway = Mock{}

func (Mock) CreatePayment(ctx context.Context, amount decimal.Decimal, orderID, description string) (payments.CreateResult, error) {
	return payments.CreateResult{
		PaymentID:   "mock_" + shortHex(),
		Status:      payments.StatusPending,
		RedirectURL: "/orders/mock-pay/?order=" + orderID,
	}, nil
}

func (Mock) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (payments.RefundResult, error) {
	return payments.RefundResult{
		RefundID: "refund_" + shortHex(),
		Status:   payments.StatusSucceeded,
	}, nil
}

func (Mock) VerifySignature(payload map[string]any, signature, secret string) bool {
	return verify(SignKV(payload, secret), signature)
}

func (Mock) SignatureHeader() string { return "X-Payment-Signature" }

func (Mock) ParseCallback(payload map[string]any) (payments.Callback, error) {
	id := stringID(payload["payment_id"])
	if id == "" {
		return payments.Callback{}, payments.ErrMissingPaymentID
	}
	raw, _ := payload["status"].(string)
	status := payments.Status(raw)
	if !payments.Known(status) {
		return payments.Callback{}, payments.ErrUnknownStatus
	}
	errMsg, _ := payload["error_message"].(string)
	return payments.Callback{
		PaymentID:    id,
		Status:       status,
		RawStatus:    raw,
		ErrorMessage: errMsg,
	}, nil
}

func shortHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
