package checkout_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookstore-storefront/internal/cart"
	"github.com/noah-isme/bookstore-storefront/internal/checkout"
	"github.com/noah-isme/bookstore-storefront/internal/common"
	"github.com/noah-isme/bookstore-storefront/internal/events"
	"github.com/noah-isme/bookstore-storefront/internal/lock"
	"github.com/noah-isme/bookstore-storefront/internal/pricing"
	"github.com/noah-isme/bookstore-storefront/internal/resilience"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

type fakeCart struct {
	items     []cart.LineItem
	discarded bool
	ordered   []cart.LineItem
}

func (f *fakeCart) Items(context.Context, string, string) ([]cart.LineItem, error) {
	return f.items, nil
}

func (f *fakeCart) Price(items []cart.LineItem, facts pricing.LoyaltyFacts) pricing.Breakdown {
	return pricing.DefaultPolicy().Compute(cart.PricingItems(items), facts)
}

func (f *fakeCart) Discard(_ context.Context, _ string, ordered []cart.LineItem) error {
	f.discarded = true
	f.ordered = ordered
	return nil
}

type fakeLoyalty struct {
	facts       pricing.LoyaltyFacts
	err         error
	invalidated bool
	invalidErr  error
}

func (f *fakeLoyalty) Facts(context.Context, string, string) (pricing.LoyaltyFacts, error) {
	return f.facts, f.err
}

func (f *fakeLoyalty) Invalidate(context.Context, string) error {
	f.invalidated = true
	return f.invalidErr
}

type fakeOrders struct {
	got    upstream.OrderRequest
	key    string
	token  string
	err    error
	called int
	during func()
}

func (f *fakeOrders) PlaceOrder(_ context.Context, token, key string, order upstream.OrderRequest) (upstream.OrderConfirmation, error) {
	f.called++
	f.got, f.key, f.token = order, key, token
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return upstream.OrderConfirmation{}, f.err
	}
	return upstream.OrderConfirmation{OrderID: "o-1", Status: "pending", Total: order.Total}, nil
}

type captureBus struct {
	topics    []string
	deadlines []time.Time
	ctxErrs   []error
}

func (c *captureBus) Emit(ctx context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	c.topics = append(c.topics, topic)
	deadline, _ := ctx.Deadline()
	c.deadlines = append(c.deadlines, deadline)
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	return events.Event{ID: "e", Topic: topic, AggregateID: aggregateID}, nil
}

var address = upstream.Address{Name: "Ada", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}

func setup(items []cart.LineItem) (*checkout.Service, *fakeCart, *fakeLoyalty, *fakeOrders, *captureBus) {
	c := &fakeCart{items: items}
	l := &fakeLoyalty{facts: pricing.LoyaltyFacts{CompletedOrderCount: 10}}
	o := &fakeOrders{}
	b := &captureBus{}
	return &checkout.Service{Cart: c, Loyalty: l, Orders: o, Events: b, Currency: "USD"}, c, l, o, b
}

func fiveBooks() []cart.LineItem {
	return []cart.LineItem{
		{ID: "i1", BookID: "b1", UnitPrice: 1000, Quantity: 3},
		{ID: "i2", BookID: "b2", UnitPrice: 1000, Quantity: 2},
	}
}

func TestCheckoutSubmitsQuotedTotals(t *testing.T) {
	svc, c, l, o, b := setup(fiveBooks())

	res, err := svc.Checkout(context.Background(), "cust-1", "tok", "idem-1", checkout.Input{ShippingAddress: address})
	require.NoError(t, err)
	require.Equal(t, "o-1", res.OrderID)
	require.Equal(t, int64(5089), res.Total)
	require.Equal(t, int64(750), res.Breakdown.DiscountAmount)

	require.Equal(t, "idem-1", o.key)
	require.Equal(t, "tok", o.token)
	require.Equal(t, int64(5000), o.got.Subtotal)
	require.Equal(t, int64(750), o.got.Discount)
	require.Equal(t, int64(340), o.got.Tax)
	require.Equal(t, int64(499), o.got.Shipping)
	require.Len(t, o.got.Items, 2)
	require.Equal(t, address, o.got.ShippingAddress)

	require.True(t, c.discarded)
	require.Equal(t, fiveBooks(), c.ordered)
	require.True(t, l.invalidated)
	require.Equal(t, []string{events.TopicCheckoutCompleted}, b.topics)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	svc, _, _, o, _ := setup(nil)
	_, err := svc.Checkout(context.Background(), "cust-1", "tok", "", checkout.Input{ShippingAddress: address})
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
	require.Zero(t, o.called)
}

func TestCheckoutFailsWithoutLoyaltyFacts(t *testing.T) {
	svc, c, l, o, _ := setup(fiveBooks())
	l.err = resilience.ErrOpenCircuit
	_, err := svc.Checkout(context.Background(), "cust-1", "tok", "", checkout.Input{ShippingAddress: address})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Zero(t, o.called)
	require.False(t, c.discarded)
}

func TestCheckoutDerivesStableKey(t *testing.T) {
	svc, _, _, o, _ := setup(fiveBooks())
	_, err := svc.Checkout(context.Background(), "cust-1", "tok", "", checkout.Input{ShippingAddress: address})
	require.NoError(t, err)
	first := o.key
	require.True(t, strings.HasPrefix(first, "checkout-"))

	_, err = svc.Checkout(context.Background(), "cust-1", "tok", "", checkout.Input{ShippingAddress: address})
	require.NoError(t, err)
	require.Equal(t, first, o.key)

	_, err = svc.Checkout(context.Background(), "cust-2", "tok", "", checkout.Input{ShippingAddress: address})
	require.NoError(t, err)
	require.NotEqual(t, first, o.key)
}

func TestCheckoutUpstreamFailureKeepsCart(t *testing.T) {
	svc, c, _, o, b := setup(fiveBooks())
	o.err = errors.New("boom")
	_, err := svc.Checkout(context.Background(), "cust-1", "tok", "", checkout.Input{ShippingAddress: address})
	require.Error(t, err)
	require.False(t, c.discarded)
	require.Equal(t, []string{events.TopicCheckoutFailed}, b.topics)
}

type bookCatalog map[string]upstream.Book

func (b bookCatalog) GetBook(_ context.Context, id string) (upstream.Book, error) {
	book, ok := b[id]
	if !ok {
		return upstream.Book{}, upstream.ErrNotFound
	}
	return book, nil
}

func TestCheckoutKeepsBooksAddedWhileOrdering(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	carts := &cart.Service{
		Store: cart.RedisStore{R: client, TTL: time.Hour},
		Books: bookCatalog{
			"b1": {ID: "b1", Title: "Dune", Price: 1000},
			"b2": {ID: "b2", Title: "Emma", Price: 800},
		},
		Locker: lock.Locker{R: client, RetryBackoff: time.Millisecond},
		Policy: pricing.DefaultPolicy(),
	}
	ctx := context.Background()
	_, err := carts.Add(ctx, "cust-1", "", "b1", 2)
	require.NoError(t, err)

	orders := &fakeOrders{during: func() {
		_, err := carts.Add(ctx, "cust-1", "", "b2", 1)
		require.NoError(t, err)
		_, err = carts.Add(ctx, "cust-1", "", "b1", 1)
		require.NoError(t, err)
	}}
	svc := &checkout.Service{Cart: carts, Orders: orders, Currency: "USD"}

	_, err = svc.Checkout(ctx, "cust-1", "", "", checkout.Input{ShippingAddress: address})
	require.NoError(t, err)
	require.Len(t, orders.got.Items, 1)
	require.Equal(t, 2, orders.got.Items[0].Quantity)

	left, err := carts.Items(ctx, "cust-1", "")
	require.NoError(t, err)
	require.Len(t, left, 2)
	quantities := map[string]int{}
	for _, it := range left {
		quantities[it.BookID] = it.Quantity
	}
	require.Equal(t, map[string]int{"b1": 1, "b2": 1}, quantities)
}

func TestCheckoutSucceedsWhenLoyaltyInvalidationFails(t *testing.T) {
	svc, c, l, _, _ := setup(fiveBooks())
	l.invalidErr = errors.New("redis down")
	var logs strings.Builder
	svc.Logger = zerolog.New(&logs)

	res, err := svc.Checkout(context.Background(), "cust-1", "tok", "idem-1", checkout.Input{ShippingAddress: address})
	require.NoError(t, err)
	require.Equal(t, "o-1", res.OrderID)
	require.True(t, c.discarded)
	require.Contains(t, logs.String(), "loyalty discount may lag")
	require.Contains(t, logs.String(), `"order_id":"o-1"`)
}

func TestCheckoutBoundsEventPublishing(t *testing.T) {
	svc, _, _, _, b := setup(fiveBooks())
	svc.EmitTimeout = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	svc.Orders.(*fakeOrders).during = cancel

	before := time.Now()
	_, err := svc.Checkout(ctx, "cust-1", "tok", "idem-1", checkout.Input{ShippingAddress: address})
	require.NoError(t, err)
	require.Len(t, b.deadlines, 1)
	require.False(t, b.deadlines[0].IsZero())
	require.WithinDuration(t, before.Add(50*time.Millisecond), b.deadlines[0], time.Second)
	require.NoError(t, b.ctxErrs[0], "publishing outlives a cancelled request")
}

func serve(h *checkout.Handler, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	if authed {
		req = req.WithContext(common.WithCustomer(req.Context(), "cust-1", "tok"))
	}
	rr := httptest.NewRecorder()
	h.Checkout(rr, req)
	return rr
}

const validBody = `{"shippingAddress":{"name":"Ada","line1":"1 Main St","city":"Springfield","postalCode":"12345","country":"US"}}`

func TestHandlerStatuses(t *testing.T) {
	svc, _, _, _, _ := setup(fiveBooks())
	h := &checkout.Handler{Svc: svc}

	rr := serve(h, validBody, true)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"orderId":"o-1"`)

	require.Equal(t, http.StatusUnauthorized, serve(h, validBody, false).Code)

	rr = serve(h, `{"shippingAddress":{"name":"Ada","country":"USA"}}`, true)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_FAILED")

	require.Equal(t, http.StatusBadRequest, serve(h, `{`, true).Code)

	empty, _, _, _, _ := setup(nil)
	rr = serve(&checkout.Handler{Svc: empty}, validBody, true)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "EMPTY_CART")
}

func TestHandlerMapsUpstreamErrors(t *testing.T) {
	svc, _, _, o, _ := setup(fiveBooks())
	h := &checkout.Handler{Svc: svc}

	o.err = resilience.ErrOpenCircuit
	require.Equal(t, http.StatusServiceUnavailable, serve(h, validBody, true).Code)

	o.err = &upstream.StatusError{Method: http.MethodPost, Path: "/orders", Status: http.StatusConflict}
	require.Equal(t, http.StatusUnprocessableEntity, serve(h, validBody, true).Code)

	o.err = upstream.ErrUnauthorized
	require.Equal(t, http.StatusUnauthorized, serve(h, validBody, true).Code)
}
