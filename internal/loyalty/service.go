package loyalty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bookstore-storefront/internal/cache"
	"github.com/noah-isme/bookstore-storefront/internal/common"
	"github.com/noah-isme/bookstore-storefront/internal/pricing"
	"github.com/noah-isme/bookstore-storefront/internal/resilience"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

// History supplies the customer's order history summary.
type History interface {
	GetOrderHistory(ctx context.Context, token string) (upstream.OrderHistory, error)
}

// Service resolves loyalty facts from the bookstore API, one snapshot per
// customer kept in the cache until it expires or is invalidated.
type Service struct {
	History History
	Cache   *cache.JSON
	Logger  zerolog.Logger
}

// Facts returns the customer's loyalty facts.
func (s *Service) Facts(ctx context.Context, customerID, token string) (pricing.LoyaltyFacts, error) {
	if s == nil || s.History == nil {
		return pricing.LoyaltyFacts{}, errors.New("loyalty: history source not configured")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return pricing.LoyaltyFacts{}, errors.New("loyalty: customer id is required")
	}
	return cache.Remember(ctx, s.Cache, cache.KeyLoyalty(customerID), func(ctx context.Context) (pricing.LoyaltyFacts, error) {
		history, err := s.History.GetOrderHistory(ctx, token)
		if err != nil {
			return pricing.LoyaltyFacts{}, fmt.Errorf("loyalty: order history: %w", err)
		}
		return pricing.LoyaltyFacts{
			IsMember:            history.IsMember,
			CompletedOrderCount: history.CompletedOrderCount,
		}, nil
	})
}

// Invalidate drops the cached facts so the next lookup sees new orders.
func (s *Service) Invalidate(ctx context.Context, customerID string) error {
	if s == nil {
		return nil
	}
	if err := s.Cache.Delete(ctx, cache.KeyLoyalty(customerID)); err != nil {
		s.Logger.Warn().Err(err).Str("customer_id", customerID).Msg("loyalty cache invalidation failed")
		return err
	}
	return nil
}

// Handler exposes the customer's loyalty facts.
type Handler struct {
	Svc *Service
}

// Get returns the loyalty facts of the authenticated customer.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	facts, err := h.Svc.Facts(r.Context(), customerID, common.AccessToken(r.Context()))
	switch {
	case err == nil:
		common.Data(w, http.StatusOK, facts)
	case errors.Is(err, upstream.ErrUnauthorized):
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "bookstore session rejected", nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "bookstore service unavailable", nil)
	default:
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "unable to load order history", nil)
	}
}
