package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bookstore-storefront/internal/cart"
	"github.com/noah-isme/bookstore-storefront/internal/common"
	"github.com/noah-isme/bookstore-storefront/internal/events"
	"github.com/noah-isme/bookstore-storefront/internal/obs"
	"github.com/noah-isme/bookstore-storefront/internal/pricing"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

// ErrEmptyCart is returned when there is nothing to check out.
var ErrEmptyCart = errors.New("cart is empty")

// Cart is the session cart as seen by checkout.
type Cart interface {
	Items(ctx context.Context, customerID, token string) ([]cart.LineItem, error)
	Price(items []cart.LineItem, facts pricing.LoyaltyFacts) pricing.Breakdown
	Discard(ctx context.Context, customerID string, ordered []cart.LineItem) error
}

// Loyalty resolves and invalidates loyalty facts.
type Loyalty interface {
	Facts(ctx context.Context, customerID, token string) (pricing.LoyaltyFacts, error)
	Invalidate(ctx context.Context, customerID string) error
}

// Orders submits orders to the bookstore API.
type Orders interface {
	PlaceOrder(ctx context.Context, token, idempotencyKey string, order upstream.OrderRequest) (upstream.OrderConfirmation, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Input is the checkout request body.
type Input struct {
	ShippingAddress upstream.Address `json:"shippingAddress" validate:"required"`
}

// Result is a placed order with the breakdown it was charged with.
type Result struct {
	OrderID   string            `json:"orderId"`
	Status    string            `json:"status"`
	Total     pricing.Money     `json:"total"`
	Currency  string            `json:"currency"`
	Breakdown pricing.Breakdown `json:"breakdown"`
}

// Service places orders for the session cart.
type Service struct {
	Cart     Cart
	Loyalty  Loyalty
	Orders   Orders
	Events   Emitter
	Currency string
	Logger   zerolog.Logger

	// EmitTimeout bounds event publishing after an order is placed. Defaults to 2s.
	EmitTimeout time.Duration
}

// Checkout prices the customer's cart and forwards it to the bookstore API.
// On success the session cart is emptied and checkout.completed is emitted.
func (s *Service) Checkout(ctx context.Context, customerID, token, idempotencyKey string, in Input) (Result, error) {
	if s == nil || s.Cart == nil || s.Orders == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	if strings.TrimSpace(customerID) == "" {
		return Result{}, errors.New("customer is required for checkout")
	}
	items, err := s.Cart.Items(ctx, customerID, token)
	if err != nil {
		obs.ObserveCheckout("error")
		return Result{}, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		obs.ObserveCheckout("empty")
		return Result{}, ErrEmptyCart
	}

	var facts pricing.LoyaltyFacts
	if s.Loyalty != nil {
		facts, err = s.Loyalty.Facts(ctx, customerID, token)
		if err != nil {
			obs.ObserveCheckout("error")
			return Result{}, fmt.Errorf("resolve loyalty: %w", err)
		}
	}
	breakdown := s.Cart.Price(items, facts)
	obs.ObserveBreakdown("checkout", breakdown)

	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = derivedKey(customerID, items, breakdown)
	}
	conf, err := s.Orders.PlaceOrder(ctx, token, idempotencyKey, orderRequest(items, breakdown, in.ShippingAddress))
	if err != nil {
		obs.ObserveCheckout("failed")
		s.emit(ctx, events.TopicCheckoutFailed, customerID, map[string]any{
			"total": breakdown.Total,
			"error": err.Error(),
		})
		return Result{}, fmt.Errorf("place order: %w", err)
	}
	obs.ObserveCheckout("placed")

	// cleanup runs even when the client has gone away
	after := context.WithoutCancel(ctx)
	if err := s.Cart.Discard(after, customerID, items); err != nil {
		s.Logger.Warn().Err(err).Str("customer_id", customerID).Str("order_id", conf.OrderID).Msg("discard cart after checkout")
	}
	if s.Loyalty != nil {
		if err := s.Loyalty.Invalidate(after, customerID); err != nil {
			s.Logger.Warn().Err(err).
				Str("customer_id", customerID).
				Str("order_id", conf.OrderID).
				Msg("loyalty facts stay cached until expiry, loyalty discount may lag this order")
		}
	}

	total := conf.Total
	if total == 0 {
		total = breakdown.Total
	}
	if total != breakdown.Total {
		s.Logger.Warn().
			Str("order_id", conf.OrderID).
			Int64("quoted", breakdown.Total).
			Int64("charged", total).
			Msg("upstream total differs from quoted total")
	}
	s.emit(ctx, events.TopicCheckoutCompleted, customerID, map[string]any{
		"orderId":   conf.OrderID,
		"status":    conf.Status,
		"total":     total,
		"currency":  s.Currency,
		"itemCount": breakdown.TotalItemCount,
		"discount":  breakdown.DiscountAmount,
	})
	return Result{
		OrderID:   conf.OrderID,
		Status:    conf.Status,
		Total:     total,
		Currency:  s.Currency,
		Breakdown: breakdown,
	}, nil
}

func (s *Service) emit(ctx context.Context, topic, customerID string, payload map[string]any) {
	if s.Events == nil {
		return
	}
	timeout := s.EmitTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if _, err := s.Events.Emit(ctx, topic, customerID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("customer_id", customerID).Msg("emit event")
	}
}

func orderRequest(items []cart.LineItem, b pricing.Breakdown, addr upstream.Address) upstream.OrderRequest {
	lines := make([]upstream.OrderLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, upstream.OrderLine{BookID: it.BookID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return upstream.OrderRequest{
		Items:           lines,
		Subtotal:        b.Subtotal,
		Discount:        b.DiscountAmount,
		Shipping:        b.Shipping,
		Tax:             b.Tax,
		Total:           b.Total,
		ShippingAddress: addr,
	}
}

func derivedKey(customerID string, items []cart.LineItem, b pricing.Breakdown) string {
	parts := make([]string, 0, len(items)+2)
	parts = append(parts, customerID)
	for _, it := range items {
		parts = append(parts, it.ID+":"+strconv.Itoa(it.Quantity)+":"+strconv.FormatInt(it.UnitPrice, 10))
	}
	parts = append(parts, strconv.FormatInt(b.Total, 10))
	return "checkout-" + common.Sha256Hex(parts...)[:32]
}
