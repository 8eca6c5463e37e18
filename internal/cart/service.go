package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bookstore-storefront/internal/cache"
	"github.com/noah-isme/bookstore-storefront/internal/obs"
	"github.com/noah-isme/bookstore-storefront/internal/pricing"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

var (
	// ErrItemNotFound indicates the cart has no entry with the given id.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrBookNotFound indicates the book to add does not exist in the catalog.
	ErrBookNotFound = errors.New("book not found")
	// ErrInvalidInput is returned when the request cannot identify the customer or book.
	ErrInvalidInput = errors.New("invalid input")
)

// Source supplies the customer's cart as recorded by the bookstore API.
type Source interface {
	GetCart(ctx context.Context, token string) ([]upstream.CartEntry, error)
}

// Books resolves books being added to the cart.
type Books interface {
	GetBook(ctx context.Context, id string) (upstream.Book, error)
}

// FactsResolver yields the loyalty facts that drive the loyalty discount.
type FactsResolver interface {
	Facts(ctx context.Context, customerID, token string) (pricing.LoyaltyFacts, error)
}

// Locker serialises mutations of one customer's cart.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// View is a cart together with its freshly computed price breakdown.
type View struct {
	Items              []LineItem           `json:"items"`
	Breakdown          pricing.Breakdown    `json:"breakdown"`
	Facts              pricing.LoyaltyFacts `json:"loyalty"`
	Currency           string               `json:"currency"`
	LoyaltyUnavailable bool                 `json:"loyaltyUnavailable,omitempty"`
}

// Service owns the session carts.
type Service struct {
	Store    Store
	Source   Source
	Books    Books
	Loyalty  FactsResolver
	Locker   Locker
	Policy   pricing.Policy
	Currency string
	LockTTL  time.Duration
	Logger   zerolog.Logger
}

// View returns the cart priced with the customer's loyalty facts. When the
// facts cannot be resolved the cart is priced without loyalty discount and
// the view is flagged.
func (s *Service) View(ctx context.Context, customerID, token string) (View, error) {
	items, err := s.Items(ctx, customerID, token)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, customerID, token, items), nil
}

// Breakdown returns only the price breakdown of the cart.
func (s *Service) Breakdown(ctx context.Context, customerID, token string) (pricing.Breakdown, error) {
	v, err := s.View(ctx, customerID, token)
	if err != nil {
		return pricing.Breakdown{}, err
	}
	return v.Breakdown, nil
}

// Items returns the cart's line items, seeding the cart from the bookstore API
// on first use.
func (s *Service) Items(ctx context.Context, customerID, token string) ([]LineItem, error) {
	if err := s.check(customerID); err != nil {
		return nil, err
	}
	items, ok, err := s.Store.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if ok {
		return items, nil
	}
	err = s.withLock(ctx, customerID, func(ctx context.Context) error {
		items, err = s.loadOrSeed(ctx, customerID, token)
		return err
	})
	return items, err
}

// Price computes the breakdown of items for the given facts.
func (s *Service) Price(items []LineItem, facts pricing.LoyaltyFacts) pricing.Breakdown {
	return s.Policy.Compute(PricingItems(items), facts)
}

// Add puts quantity copies of the book into the cart.
func (s *Service) Add(ctx context.Context, customerID, token, bookID string, quantity int) (View, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return View{}, fmt.Errorf("bookId is required: %w", ErrInvalidInput)
	}
	if s.Books == nil {
		return View{}, errors.New("cart: book catalog not configured")
	}
	book, err := s.Books.GetBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return View{}, ErrBookNotFound
		}
		return View{}, fmt.Errorf("cart: resolve book: %w", err)
	}
	return s.mutate(ctx, "add", customerID, token, func(items []LineItem) ([]LineItem, error) {
		return AddItem(items, LineItem{
			BookID:        book.ID,
			Title:         book.Title,
			CoverImageURL: book.CoverImageURL,
			UnitPrice:     book.Price,
			Quantity:      quantity,
		}), nil
	})
}

// SetQuantity changes an entry's quantity. Quantities below one leave the
// cart unchanged.
func (s *Service) SetQuantity(ctx context.Context, customerID, token, itemID string, quantity int) (View, error) {
	return s.mutate(ctx, "set_quantity", customerID, token, func(items []LineItem) ([]LineItem, error) {
		if !contains(items, itemID) {
			return nil, ErrItemNotFound
		}
		return SetQuantity(items, itemID, quantity), nil
	})
}

// Remove deletes an entry. Removing an unknown entry is not an error.
func (s *Service) Remove(ctx context.Context, customerID, token, itemID string) (View, error) {
	return s.mutate(ctx, "remove", customerID, token, func(items []LineItem) ([]LineItem, error) {
		return RemoveItem(items, itemID), nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, customerID, token string) (View, error) {
	return s.mutate(ctx, "clear", customerID, token, func(items []LineItem) ([]LineItem, error) {
		return ClearCart(items), nil
	})
}

// Refresh replaces the cart with the bookstore API's copy.
func (s *Service) Refresh(ctx context.Context, customerID, token string) (View, error) {
	if err := s.check(customerID); err != nil {
		return View{}, err
	}
	var items []LineItem
	err := s.withLock(ctx, customerID, func(ctx context.Context) error {
		seeded, err := s.seed(ctx, token)
		if err != nil {
			return err
		}
		if err := s.Store.Save(ctx, customerID, seeded); err != nil {
			return err
		}
		items = seeded
		return nil
	})
	obs.ObserveCartMutation("refresh", err)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, customerID, token, items), nil
}

// Discard removes the ordered lines once checkout succeeded. Books added while
// the order was being placed stay in the cart.
func (s *Service) Discard(ctx context.Context, customerID string, ordered []LineItem) error {
	if err := s.check(customerID); err != nil {
		return err
	}
	err := s.withLock(ctx, customerID, func(ctx context.Context) error {
		current, _, err := s.Store.Load(ctx, customerID)
		if err != nil {
			return err
		}
		rest := SubtractOrdered(current, ordered)
		if n := TotalQuantity(rest); n > 0 {
			s.Logger.Info().Str("customer_id", customerID).Int("remaining_quantity", n).Msg("cart kept books added during checkout")
		}
		return s.Store.Save(ctx, customerID, rest)
	})
	obs.ObserveCartMutation("discard", err)
	return err
}

func (s *Service) mutate(ctx context.Context, op, customerID, token string, fn func([]LineItem) ([]LineItem, error)) (View, error) {
	if err := s.check(customerID); err != nil {
		return View{}, err
	}
	var items []LineItem
	err := s.withLock(ctx, customerID, func(ctx context.Context) error {
		current, err := s.loadOrSeed(ctx, customerID, token)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if err := s.Store.Save(ctx, customerID, next); err != nil {
			return err
		}
		items = next
		return nil
	})
	obs.ObserveCartMutation(op, err)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, customerID, token, items), nil
}

func (s *Service) view(ctx context.Context, customerID, token string, items []LineItem) View {
	v := View{Items: items, Currency: s.Currency}
	if s.Loyalty != nil {
		facts, err := s.Loyalty.Facts(ctx, customerID, token)
		if err != nil {
			s.Logger.Warn().Err(err).Str("customer_id", customerID).Msg("loyalty facts unavailable")
			v.LoyaltyUnavailable = true
		} else {
			v.Facts = facts
		}
	}
	v.Breakdown = s.Price(items, v.Facts)
	obs.ObserveBreakdown("cart", v.Breakdown)
	return v
}

func (s *Service) loadOrSeed(ctx context.Context, customerID, token string) ([]LineItem, error) {
	items, ok, err := s.Store.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if ok {
		return items, nil
	}
	seeded, err := s.seed(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Save(ctx, customerID, seeded); err != nil {
		return nil, err
	}
	return seeded, nil
}

func (s *Service) seed(ctx context.Context, token string) ([]LineItem, error) {
	if s.Source == nil || token == "" {
		return []LineItem{}, nil
	}
	entries, err := s.Source.GetCart(ctx, token)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return []LineItem{}, nil
		}
		return nil, fmt.Errorf("cart: seed from bookstore api: %w", err)
	}
	return FromUpstream(entries), nil
}

func (s *Service) withLock(ctx context.Context, customerID string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return s.Locker.WithLock(ctx, cache.KeyCartLock(customerID), ttl, fn)
}

func (s *Service) check(customerID string) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	if strings.TrimSpace(customerID) == "" {
		return fmt.Errorf("customer id is required: %w", ErrInvalidInput)
	}
	return nil
}

func contains(items []LineItem, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}
