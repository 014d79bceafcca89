package payments

import (
	"context"

	"github.com/shopspring/decimal"
)

// CreateResult is the gateway's answer to a create-payment request. Ordinary
// declines come back as a status, never as an error; errors are reserved for
// connectivity/protocol failures.
type CreateResult struct {
	PaymentID   string
	Status      Status
	RedirectURL string
}

type RefundResult struct {
	RefundID string
	// Status may stay pending for providers without synchronous refunds.
	Status Status
}

// Callback is a provider notification normalized into internal vocabulary.
// RawStatus keeps the provider's own wording for audit.
type Callback struct {
	PaymentID    string
	Status       Status
	RawStatus    string
	ErrorMessage string
}

// Gateway abstracts one payment provider. Implementations are stateless and
// safe for concurrent use; one gateway is bound per Service instance.
type Gateway interface {
	CreatePayment(ctx context.Context, amount decimal.Decimal, orderID, description string) (CreateResult, error)

	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (RefundResult, error)

	// VerifySignature checks the provider's HMAC over its own canonical form
	// of the payload. Constant-time; canonicalization is not interchangeable
	// between variants.
	VerifySignature(payload map[string]any, signature, secret string) bool

	// SignatureHeader names the transport header carrying the signature.
	SignatureHeader() string

	// ParseCallback extracts the provider's payment identifier and maps the
	// provider status vocabulary into the internal one.
	ParseCallback(payload map[string]any) (Callback, error)
}
