package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rakhadi/go-shop-payments.git/internal/orders"
	"github.com/rakhadi/go-shop-payments.git/internal/redisx"
	"github.com/redis/go-redis/v9"
)

type OrdersHandler struct {
	Store orders.Store
	Redis *redis.Client
}

type CreateOrderReq struct {
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Email     string             `json:"email"`
	Address   string             `json:"address"`
	City      string             `json:"city"`
	Items     []orders.LineInput `json:"items"`
}

type CreateOrderResp struct {
	OrderID string `json:"order_id"`
	Total   string `json:"total"`
	Status  string `json:"status"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/stock", h.listStock)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	userID := r.Header.Get(headerUserID)
	sessionKey := r.Header.Get(headerSessionKey)
	if userID == "" && sessionKey == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing caller identity"})
		return
	}
	if req.Email == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, total, err := h.Store.PlaceOrder(ctx, orders.PlaceOrderInput{
		UserID:     userID,
		SessionKey: sessionKey,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Address:    req.Address,
		City:       req.City,
		Lines:      req.Items,
	})
	if err != nil {
		var short *orders.InsufficientStockError
		if errors.As(err, &short) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   "insufficient stock",
				"details": short.Lines,
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, CreateOrderResp{
		OrderID: o.ID,
		Total:   total.StringFixed(2),
		Status:  string(o.Status),
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// ownership needs the row anyway, so no cache fast path here
	o, _ := authorizeOrder(ctx, w, r, h.Store, orderID)
	if o == nil {
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, orderStatusBody(o))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if o, _ := authorizeOrder(ctx, w, r, h.Store, orderID); o == nil {
		return
	}

	o, err := h.Store.Cancel(ctx, orderID)
	if err != nil {
		var bad *orders.InvalidTransitionError
		switch {
		case errors.Is(err, orders.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.As(err, &bad):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	h.cacheStatus(ctx, o)
	// the cancel also kills any pending payment flow
	h.invalidatePaymentStatus(ctx, orderID)
	writeJSON(w, http.StatusOK, orderStatusBody(o))
}

func (h *OrdersHandler) listStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	stock, err := h.Store.ListStock(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	type row struct {
		ProductID   string `json:"product_id"`
		Quantity    int    `json:"quantity"`
		IsAvailable bool   `json:"is_available"`
	}
	out := make([]row, 0, len(stock))
	for _, s := range stock {
		out = append(out, row{ProductID: s.ProductID, Quantity: s.Quantity, IsAvailable: s.IsAvailable})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = redisx.SetJSON(ctx, h.Redis, key, orderStatusBody(o), redisx.TTLStatusCache)
}

func (h *OrdersHandler) invalidatePaymentStatus(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyPaymentStatus, orderID))
}

func orderStatusBody(o *orders.Order) map[string]any {
	return map[string]any{
		"order_id": o.ID,
		"status":   string(o.Status),
		"paid":     o.Paid,
	}
}
