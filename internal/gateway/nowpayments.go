package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rakhadi/go-shop-payments.git/internal/payments"
	"github.com/shopspring/decimal"
)

// NowPayments drives the invoice flow of nowpayments.io: create_payment opens
// an invoice and redirects the buyer to a hosted payment page; status changes
// arrive as signed IPN callbacks.
type NowPayments struct {
	APIKey         string
	IPNCallbackURL string
	SuccessURL     string
	CancelURL      string
	Currency       string // price currency, defaults to "rub"
	BaseURL        string // defaults to the production API
	Client         *http.Client
}

var _ payments.Gateway = (*NowPayments)(nil)

const nowPaymentsAPI = "https://api.nowpayments.io/v1"

// Provider statuses mapped into the internal five. Every interim state
// (confirming, sending, partially paid) stays pending: not paid yet.
var nowPaymentsStatus = map[string]payments.Status{
	"waiting":        payments.StatusPending,
	"confirming":     payments.StatusPending,
	"confirmed":      payments.StatusPending,
	"sending":        payments.StatusPending,
	"partially_paid": payments.StatusPending,
	"finished":       payments.StatusSucceeded,
	"failed":         payments.StatusFailed,
	"expired":        payments.StatusFailed,
	"refunded":       payments.StatusRefunded,
}

func NewNowPayments(apiKey, ipnCallbackURL, successURL, cancelURL string) *NowPayments {
	return &NowPayments{
		APIKey:         apiKey,
		IPNCallbackURL: ipnCallbackURL,
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		Currency:       "rub",
		BaseURL:        nowPaymentsAPI,
		Client:         newHTTPClient(),
	}
}

func (g *NowPayments) CreatePayment(ctx context.Context, amount decimal.Decimal, orderID, description string) (payments.CreateResult, error) {
	body := map[string]any{
		"price_amount":      amount.InexactFloat64(),
		"price_currency":    g.Currency,
		"order_id":          "order_" + orderID,
		"order_description": description,
	}
	if g.IPNCallbackURL != "" {
		body["ipn_callback_url"] = g.IPNCallbackURL
	}
	if g.SuccessURL != "" {
		body["success_url"] = g.SuccessURL
	}
	if g.CancelURL != "" {
		body["cancel_url"] = g.CancelURL
	}

	var resp struct {
		ID         json.Number `json:"id"`
		InvoiceURL string      `json:"invoice_url"`
	}
	headers := map[string]string{"x-api-key": g.APIKey}
	if err := postJSON(ctx, g.Client, "nowpayments", g.BaseURL+"/invoice", headers, body, &resp); err != nil {
		return payments.CreateResult{}, err
	}

	return payments.CreateResult{
		PaymentID:   resp.ID.String(),
		Status:      payments.StatusPending,
		RedirectURL: resp.InvoiceURL,
	}, nil
}

// Refund has no API support at this provider; refunds happen in the merchant
// dashboard, so the request is acknowledged as pending.
func (g *NowPayments) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (payments.RefundResult, error) {
	return payments.RefundResult{
		RefundID: "refund_" + shortHex(),
		Status:   payments.StatusPending,
	}, nil
}

// VerifySignature follows the IPN documentation: HMAC-SHA512 over the
// compact sorted-key JSON serialization of the body.
func (g *NowPayments) VerifySignature(payload map[string]any, signature, secret string) bool {
	if secret == "" {
		return false
	}
	return verify(SignSortedJSON(payload, secret), signature)
}

func (g *NowPayments) SignatureHeader() string { return "x-nowpayments-sig" }

func (g *NowPayments) ParseCallback(payload map[string]any) (payments.Callback, error) {
	// invoice flow stores the invoice id as our payment_id
	id := stringID(payload["invoice_id"])
	if id == "" {
		id = stringID(payload["payment_id"])
	}
	if id == "" {
		return payments.Callback{}, payments.ErrMissingPaymentID
	}

	raw, _ := payload["payment_status"].(string)
	if raw == "" {
		raw, _ = payload["status"].(string)
	}
	errMsg, _ := payload["error_message"].(string)
	return payments.Callback{
		PaymentID:    id,
		Status:       g.mapStatus(raw),
		RawStatus:    raw,
		ErrorMessage: errMsg,
	}, nil
}

func (g *NowPayments) mapStatus(provider string) payments.Status {
	if s, ok := nowPaymentsStatus[provider]; ok {
		return s
	}
	return payments.StatusPending // don't mark paid on anything unknown
}
