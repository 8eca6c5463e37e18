package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/bookstore-storefront/internal/common"
	"github.com/noah-isme/bookstore-storefront/internal/resilience"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	Svc *Service
}

// Books handles GET /api/v1/books.
func (h *Handler) Books(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, h.Svc.DefaultLimit, h.Svc.MaxLimit)
	result, err := h.Svc.List(r.Context(), upstream.BookQuery{Page: page, Limit: limit, Query: r.URL.Query().Get("q")})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.List(w, result.Items, common.NewPagination(result.Page, result.Limit, result.Total))
}

// Book handles GET /api/v1/books/{id}.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	book, err := h.Svc.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, book)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "book not found", nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "bookstore service unavailable", nil)
	default:
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "unable to load catalog", nil)
	}
}
