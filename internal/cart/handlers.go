package cart

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/bookstore-storefront/internal/common"
	"github.com/noah-isme/bookstore-storefront/internal/lock"
	"github.com/noah-isme/bookstore-storefront/internal/resilience"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

// Handler wires the cart service to HTTP. All routes require an
// authenticated customer.
type Handler struct {
	Svc *Service
}

type addItemRequest struct {
	BookID   string `json:"bookId" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"gte=0,lte=999"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"lte=999"`
}

// Get returns the cart and its price breakdown.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, token, ok := h.customer(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.View(r.Context(), customerID, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// Breakdown returns only the price breakdown.
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	customerID, token, ok := h.customer(w, r)
	if !ok {
		return
	}
	breakdown, err := h.Svc.Breakdown(r.Context(), customerID, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, breakdown)
}

// AddItem adds a book to the cart or increments its line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	customerID, token, ok := h.customer(w, r)
	if !ok {
		return
	}
	var payload addItemRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.Add(r.Context(), customerID, token, payload.BookID, payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// UpdateItem sets the quantity of a line. Quantities below one are ignored
// and the unchanged cart is returned.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	customerID, token, ok := h.customer(w, r)
	if !ok {
		return
	}
	var payload setQuantityRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.SetQuantity(r.Context(), customerID, token, chi.URLParam(r, "itemId"), payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	customerID, token, ok := h.customer(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Remove(r.Context(), customerID, token, chi.URLParam(r, "itemId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	customerID, token, ok := h.customer(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Clear(r.Context(), customerID, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// Refresh reloads the cart from the bookstore API.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	customerID, token, ok := h.customer(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Refresh(r.Context(), customerID, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) customer(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", "", false
	}
	customerID, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", "", false
	}
	return customerID, common.AccessToken(r.Context()), true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrBookNotFound):
		common.JSONError(w, http.StatusNotFound, "BOOK_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, lock.ErrBusy):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "cart is being updated, retry shortly", nil)
	case errors.Is(err, upstream.ErrUnauthorized):
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "bookstore session rejected", nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "bookstore service unavailable", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process cart", nil)
	}
}
