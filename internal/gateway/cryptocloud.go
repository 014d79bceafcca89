package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rakhadi/go-shop-payments.git/internal/payments"
	"github.com/shopspring/decimal"
)

// CryptoCloud drives the shop/order flow of cryptocloud.pro: payments are
// created against a shop id and the buyer is redirected to the provider's
// payment page. Signature scheme differs from NowPayments: HMAC-SHA256 over
// sorted k=v pairs with the shop's own secret key.
type CryptoCloud struct {
	APIKey    string
	SecretKey string
	ShopID    string
	BaseURL   string // defaults to the production API
	Client    *http.Client
}

var _ payments.Gateway = (*CryptoCloud)(nil)

const cryptoCloudAPI = "https://api.cryptocloud.pro"

var cryptoCloudStatus = map[string]payments.Status{
	"created":  payments.StatusPending,
	"partial":  payments.StatusPending,
	"paid":     payments.StatusSucceeded,
	"overpaid": payments.StatusSucceeded,
	"canceled": payments.StatusFailed,
	"refunded": payments.StatusRefunded,
}

func NewCryptoCloud(apiKey, secretKey, shopID string) *CryptoCloud {
	return &CryptoCloud{
		APIKey:    apiKey,
		SecretKey: secretKey,
		ShopID:    shopID,
		BaseURL:   cryptoCloudAPI,
		Client:    newHTTPClient(),
	}
}

func (g *CryptoCloud) CreatePayment(ctx context.Context, amount decimal.Decimal, orderID, description string) (payments.CreateResult, error) {
	body := map[string]any{
		"shop_id":     g.ShopID,
		"order_id":    "order_" + orderID,
		"amount":      amount.InexactFloat64(),
		"currency":    "RUB",
		"description": description,
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Result  struct {
			PaymentID string `json:"payment_id"`
			URL       string `json:"url"`
		} `json:"result"`
	}
	headers := map[string]string{"X-API-KEY": g.APIKey}
	if err := postJSON(ctx, g.Client, "cryptocloud", g.BaseURL+"/v1/payment/create", headers, body, &resp); err != nil {
		return payments.CreateResult{}, err
	}
	if !resp.Success {
		if resp.Message == "" {
			resp.Message = "unknown error"
		}
		return payments.CreateResult{}, &Error{Provider: "cryptocloud", Err: fmt.Errorf("create rejected: %s", resp.Message)}
	}

	paymentID := resp.Result.PaymentID
	if paymentID == "" {
		paymentID = "order_" + orderID
	}
	return payments.CreateResult{
		PaymentID:   paymentID,
		Status:      payments.StatusPending,
		RedirectURL: resp.Result.URL,
	}, nil
}

// Refund is not exposed by the provider API; acknowledged as pending.
func (g *CryptoCloud) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (payments.RefundResult, error) {
	return payments.RefundResult{
		RefundID: "refund_" + shortHex(),
		Status:   payments.StatusPending,
	}, nil
}

// VerifySignature uses the shop secret key held by the gateway, not the
// per-service callback secret.
func (g *CryptoCloud) VerifySignature(payload map[string]any, signature, secret string) bool {
	return verify(SignKV(payload, g.SecretKey), signature)
}

func (g *CryptoCloud) SignatureHeader() string { return "X-Cryptocloud-Signature" }

func (g *CryptoCloud) ParseCallback(payload map[string]any) (payments.Callback, error) {
	id := stringID(payload["payment_id"])
	if id == "" {
		id = stringID(payload["invoice_id"])
	}
	if id == "" {
		return payments.Callback{}, payments.ErrMissingPaymentID
	}
	raw, _ := payload["status"].(string)
	status, ok := cryptoCloudStatus[raw]
	if !ok {
		status = payments.StatusPending
	}
	errMsg, _ := payload["error_message"].(string)
	return payments.Callback{
		PaymentID:    id,
		Status:       status,
		RawStatus:    raw,
		ErrorMessage: errMsg,
	}, nil
}
