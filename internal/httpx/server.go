package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rakhadi/go-shop-payments.git/internal/metrics"
	"github.com/rakhadi/go-shop-payments.git/internal/orders"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// caller identity headers; auth itself lives at the edge, outside this service
const (
	headerUserID     = "X-User-ID"
	headerSessionKey = "X-Session-Key"
)

// authorizeOrder loads the order and enforces ownership. Returns nil plus the
// written status code when the request was already answered.
func authorizeOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, store orders.Store, orderID string) (*orders.Order, int) {
	userID := r.Header.Get(headerUserID)
	sessionKey := r.Header.Get(headerSessionKey)
	if userID == "" && sessionKey == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing caller identity"})
		return nil, http.StatusUnauthorized
	}
	o, err := store.GetOrder(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return nil, http.StatusNotFound
	}
	if !o.OwnedBy(userID, sessionKey) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not your order"})
		return nil, http.StatusForbidden
	}
	return o, http.StatusOK
}
