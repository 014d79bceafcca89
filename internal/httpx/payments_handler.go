package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rakhadi/go-shop-payments.git/internal/gateway"
	"github.com/rakhadi/go-shop-payments.git/internal/metrics"
	"github.com/rakhadi/go-shop-payments.git/internal/orders"
	"github.com/rakhadi/go-shop-payments.git/internal/payments"
	"github.com/rakhadi/go-shop-payments.git/internal/redisx"
	"github.com/redis/go-redis/v9"
)

type PaymentsHandler struct {
	Service *payments.Service
	Orders  orders.Store
	Redis   *redis.Client
	Metrics *metrics.ServerMetrics
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/orders/{id}/payment", h.createPayment)
	r.Get("/orders/{id}/payment/status", h.paymentStatus)
	r.Post("/orders/{id}/payment/refund", h.refundPayment)
	r.Post("/payments/callback", h.callback)
}

type CreatePaymentResp struct {
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

func (h *PaymentsHandler) createPayment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second) // gateway call may take a while
	defer cancel()

	o, code := authorizeOrder(ctx, w, r, h.Orders, orderID)
	if o == nil {
		h.observe("payment_create", code, start)
		return
	}

	p, redirectURL, err := h.Service.CreatePayment(ctx, orderID)
	if err != nil {
		h.observe("payment_create", h.writeError(w, err), start)
		return
	}

	h.invalidatePaymentCache(ctx, orderID)
	writeJSON(w, http.StatusCreated, CreatePaymentResp{
		PaymentID:   p.PaymentID,
		Status:      string(p.Status),
		RedirectURL: redirectURL,
	})
	h.observe("payment_create", http.StatusCreated, start)
}

func (h *PaymentsHandler) callback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		h.observe("payment_callback", http.StatusBadRequest, start)
		return
	}
	signature := r.Header.Get(h.Service.Gateway.SignatureHeader())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Service.HandleCallback(ctx, payload, signature)
	if err != nil {
		h.observe("payment_callback", h.writeError(w, err), start)
		return
	}

	h.invalidatePaymentCache(ctx, p.OrderID)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"payment_id": p.PaymentID,
		"status":     string(p.Status),
	})
	h.observe("payment_callback", http.StatusOK, start)
}

func (h *PaymentsHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, code := authorizeOrder(ctx, w, r, h.Orders, orderID)
	if o == nil {
		h.observe("payment_status", code, start)
		return
	}

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyPaymentStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			h.observe("payment_status", http.StatusOK, start)
			return
		}
	}

	p, err := h.Service.LatestPayment(ctx, orderID)
	if err != nil {
		h.observe("payment_status", h.writeError(w, err), start)
		return
	}

	body := map[string]any{
		"order_id": o.ID,
		"status":   string(o.Status),
		"paid":     o.Paid,
		"payment":  nil,
	}
	if p != nil {
		body["payment"] = map[string]any{
			"payment_id": p.PaymentID,
			"status":     string(p.Status),
		}
	}
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyPaymentStatus, orderID)
		_ = redisx.SetJSON(ctx, h.Redis, key, body, redisx.TTLStatusCache)
	}
	writeJSON(w, http.StatusOK, body)
	h.observe("payment_status", http.StatusOK, start)
}

func (h *PaymentsHandler) refundPayment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
	defer cancel()

	o, code := authorizeOrder(ctx, w, r, h.Orders, orderID)
	if o == nil {
		h.observe("payment_refund", code, start)
		return
	}

	p, err := h.Service.LatestPayment(ctx, orderID)
	if err != nil {
		h.observe("payment_refund", h.writeError(w, err), start)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order has no payment"})
		h.observe("payment_refund", http.StatusBadRequest, start)
		return
	}

	p, err = h.Service.RefundPayment(ctx, p.PaymentID)
	if err != nil {
		h.observe("payment_refund", h.writeError(w, err), start)
		return
	}

	h.invalidatePaymentCache(ctx, orderID)
	writeJSON(w, http.StatusOK, map[string]any{
		"payment_id": p.PaymentID,
		"status":     string(p.Status),
	})
	h.observe("payment_refund", http.StatusOK, start)
}

// writeError maps service errors onto transport codes and returns the code.
func (h *PaymentsHandler) writeError(w http.ResponseWriter, err error) int {
	var (
		validation *payments.ValidationError
		transition *payments.InvalidTransitionError
		gw         *gateway.Error
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Reason})
		return http.StatusBadRequest
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return http.StatusConflict
	case errors.As(err, &gw):
		// retryable: nothing was persisted on this path
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "retryable": true})
		return http.StatusBadGateway
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return http.StatusNotFound
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return http.StatusInternalServerError
	}
}

func (h *PaymentsHandler) invalidatePaymentCache(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	h.Redis.Del(ctx,
		fmt.Sprintf(redisx.KeyPaymentStatus, orderID),
		fmt.Sprintf(redisx.KeyOrderStatus, orderID),
	)
}

func (h *PaymentsHandler) observe(handler string, code int, start time.Time) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.Observe(handler, strconv.Itoa(code), float64(time.Since(start).Milliseconds()))
}
