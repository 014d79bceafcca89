package payments

import "fmt"

// ValidationError is a business-rule violation. It is always surfaced to the
// caller and never leaves a partial write behind.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

var (
	ErrOrderAlreadyPaid = &ValidationError{Reason: "order is already paid"}
	ErrActivePayment    = &ValidationError{Reason: "active payment already exists"}
	ErrZeroAmount       = &ValidationError{Reason: "order total must be greater than zero"}
	ErrInvalidSignature = &ValidationError{Reason: "invalid callback signature"}
	ErrMissingPaymentID = &ValidationError{Reason: "payment_id missing in callback"}
	ErrUnknownPayment   = &ValidationError{Reason: "unknown payment id"}
	ErrRefundNotAllowed = &ValidationError{Reason: "only succeeded payments can be refunded"}
	ErrUnknownStatus    = &ValidationError{Reason: "unknown payment status in callback"}
)

type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("payment transition %s -> %s is not allowed", e.From, e.To)
}
