package checkout

import (
	"errors"
	"net/http"

	"github.com/noah-isme/bookstore-storefront/internal/common"
	"github.com/noah-isme/bookstore-storefront/internal/lock"
	"github.com/noah-isme/bookstore-storefront/internal/resilience"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

type Handler struct {
	Svc *Service
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	customerID, ok := common.CustomerID(r.Context())
	if !ok || customerID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload Input
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	out, err := h.Svc.Checkout(r.Context(), customerID, common.AccessToken(r.Context()), r.Header.Get("Idempotency-Key"), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	var statusErr *upstream.StatusError
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, lock.ErrBusy):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "cart is being updated, retry shortly", nil)
	case errors.Is(err, upstream.ErrUnauthorized):
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "bookstore session rejected", nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "bookstore service unavailable", nil)
	case errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500:
		common.JSONError(w, http.StatusUnprocessableEntity, "ORDER_REJECTED", "order rejected by bookstore", map[string]any{"status": statusErr.Status})
	default:
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "unable to place order", nil)
	}
}
