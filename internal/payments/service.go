package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkax "github.com/rakhadi/go-shop-payments.git/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher is satisfied by *kafkax.Producer; nil disables event publishing.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Service orchestrates the payment lifecycle against one bound gateway.
// Retries are caller-driven: a GatewayError from CreatePayment leaves nothing
// persisted, so the caller may simply call again.
type Service struct {
	Gateway Gateway
	Store   Store
	Events  Publisher
	Secret  string // IPN secret handed to VerifySignature
	Name    string // producer name for event envelopes
}

// CreatePayment creates a remote payment for the order and persists a pending
// Payment row carrying the gateway-issued id. Returns the payment and a
// redirect URL for the end user (may be empty).
func (s *Service) CreatePayment(ctx context.Context, orderID string) (*Payment, string, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	if o.Paid {
		return nil, "", ErrOrderAlreadyPaid
	}
	if latest, err := s.Store.LatestForOrder(ctx, orderID); err != nil {
		return nil, "", err
	} else if latest != nil && latest.Status == StatusPending {
		return nil, "", ErrActivePayment
	}
	total, err := s.Store.OrderTotal(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	if !total.IsPositive() {
		return nil, "", ErrZeroAmount
	}

	// Network call happens before any write: a GatewayError here is retry-safe.
	res, err := s.Gateway.CreatePayment(ctx, total, orderID, fmt.Sprintf("Order #%s", orderID))
	if err != nil {
		return nil, "", err
	}

	// CreatePending re-validates under the order row lock; when two creates
	// race, exactly one insert wins and the other surfaces ErrActivePayment.
	p, err := s.Store.CreatePending(ctx, orderID, res.PaymentID, total)
	if err != nil {
		return nil, "", err
	}

	s.publish(TopicPaymentCreated, EventPaymentCreated, p, "", "")
	return p, res.RedirectURL, nil
}

// HandleCallback processes one provider notification. The signature is checked
// before any lookup so unauthenticated callers cannot enumerate payment ids.
// Re-delivery of an already-applied status is a no-op returning the unchanged
// payment.
func (s *Service) HandleCallback(ctx context.Context, payload map[string]any, signature string) (*Payment, error) {
	if !s.Gateway.VerifySignature(payload, signature, s.Secret) {
		return nil, ErrInvalidSignature
	}

	cb, err := s.Gateway.ParseCallback(payload)
	if err != nil {
		return nil, err
	}

	p, applied, err := s.Store.ApplyStatus(ctx, cb.PaymentID, cb.Status, cb.ErrorMessage)
	if err != nil {
		return nil, err
	}
	if !applied {
		return p, nil
	}

	switch p.Status {
	case StatusSucceeded:
		s.publish(TopicPaymentSucceeded, EventPaymentSucceeded, p, cb.RawStatus, "")
	case StatusFailed:
		s.publish(TopicPaymentFailed, EventPaymentFailed, p, cb.RawStatus, p.ErrorMessage)
	case StatusCancelled:
		s.publish(TopicPaymentFailed, EventPaymentCancelled, p, cb.RawStatus, "")
	case StatusRefunded:
		s.publish(TopicPaymentRefunded, EventPaymentRefunded, p, cb.RawStatus, "")
		s.publishOrderCancelled(p.OrderID)
	}
	return p, nil
}

// RefundPayment refunds a succeeded payment. The gateway call is
// informational: once it returns without error the local model moves to
// refunded, the order is cancelled and its stock restored, all in one unit of
// work.
func (s *Service) RefundPayment(ctx context.Context, paymentID string) (*Payment, error) {
	p, err := s.Store.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusSucceeded {
		return nil, ErrRefundNotAllowed
	}

	if _, err := s.Gateway.Refund(ctx, p.PaymentID, p.Amount); err != nil {
		return nil, err
	}

	p, err = s.Store.MarkRefunded(ctx, p.PaymentID)
	if err != nil {
		return nil, err
	}

	s.publish(TopicPaymentRefunded, EventPaymentRefunded, p, "", "")
	s.publishOrderCancelled(p.OrderID)
	return p, nil
}

// LatestPayment returns the most recent payment for the order, or nil.
func (s *Service) LatestPayment(ctx context.Context, orderID string) (*Payment, error) {
	return s.Store.LatestForOrder(ctx, orderID)
}

func (s *Service) publish(topic, eventType string, p *Payment, rawStatus, errMsg string) {
	if s.Events == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Name,
		CorrelationID: p.OrderID,
		Payload: kafkax.MustMarshal(PaymentEventPayload{
			OrderID:      p.OrderID,
			PaymentID:    p.PaymentID,
			Amount:       p.Amount.StringFixed(2),
			Status:       string(p.Status),
			RawStatus:    rawStatus,
			ErrorMessage: errMsg,
		}),
	}
	s.Events.Publish(topic, PartitionKey(p.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) publishOrderCancelled(orderID string) {
	if s.Events == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Name,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(OrderCancelledPayload{OrderID: orderID, StockRestored: true}),
	}
	s.Events.Publish(TopicOrderCancelled, PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
