package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/bookstore-storefront/internal/resilience"
)

var (
	// ErrNotFound is returned when the bookstore API has no such resource.
	ErrNotFound = errors.New("upstream: not found")
	// ErrUnauthorized is returned when the bookstore API rejects the customer token.
	ErrUnauthorized = errors.New("upstream: unauthorized")
)

// StatusError reports an unexpected response status.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: %s %s returned %d", e.Method, e.Path, e.Status)
}

const maxErrorBody = 2 << 10

// Options tunes the client transport.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	RetryBase   time.Duration
	RetryJitter float64
	Breaker     *resilience.Breaker
	Transport   http.RoundTripper
	Logger      zerolog.Logger
	MeterName   string
}

// Client talks to the external bookstore API.
type Client struct {
	base   *url.URL
	http   resilience.HTTPClient
	calls  metric.Int64Counter
	logger zerolog.Logger
}

// New constructs a client rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("upstream: unsupported scheme %q", parsed.Scheme)
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	meterName := opts.MeterName
	if meterName == "" {
		meterName = "github.com/noah-isme/bookstore-storefront/internal/upstream"
	}
	calls, err := otel.Meter(meterName).Int64Counter(
		"upstream.requests",
		metric.WithDescription("Requests sent to the bookstore API"),
	)
	if err != nil {
		return nil, fmt.Errorf("upstream: create counter: %w", err)
	}
	logger := opts.Logger.With().Str("component", "upstream").Logger()
	return &Client{
		base: parsed,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker:     opts.Breaker,
			Target:      "bookstore_api",
			BaseBackoff: opts.RetryBase,
			MaxAttempts: opts.MaxAttempts,
			Jitter:      opts.RetryJitter,
			Timeout:     opts.Timeout,
			Logger:      logger,
		},
		calls:  calls,
		logger: logger,
	}, nil
}

// ListBooks returns a page of the catalog.
func (c *Client) ListBooks(ctx context.Context, q BookQuery) (BookPage, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if s := strings.TrimSpace(q.Query); s != "" {
		params.Set("q", s)
	}
	var wire wireBookPage
	if err := c.do(ctx, "list_books", http.MethodGet, "/books", params, "", nil, &wire); err != nil {
		return BookPage{}, err
	}
	page := BookPage{
		Items: make([]Book, 0, len(wire.Data)),
		Page:  wire.Meta.Page,
		Limit: wire.Meta.Limit,
		Total: wire.Meta.Total,
	}
	for _, b := range wire.Data {
		page.Items = append(page.Items, b.toBook())
	}
	return page, nil
}

// GetBook loads one catalog entry.
func (c *Client) GetBook(ctx context.Context, id string) (Book, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Book{}, ErrNotFound
	}
	var wire wireBook
	if err := c.do(ctx, "get_book", http.MethodGet, "/books/"+url.PathEscape(id), nil, "", nil, &wire); err != nil {
		return Book{}, err
	}
	return wire.toBook(), nil
}

// GetCart loads the customer's cart contents. Entries without a quantity
// count as one.
func (c *Client) GetCart(ctx context.Context, token string) ([]CartEntry, error) {
	var wire wireCart
	if err := c.do(ctx, "get_cart", http.MethodGet, "/cart", nil, token, nil, &wire); err != nil {
		return nil, err
	}
	entries := make([]CartEntry, 0, len(wire.Items))
	for _, it := range wire.Items {
		qty := 1
		if it.Quantity != nil && *it.Quantity > 0 {
			qty = *it.Quantity
		}
		entries = append(entries, CartEntry{ItemID: it.ItemID, Book: it.Book.toBook(), Quantity: qty})
	}
	return entries, nil
}

// GetOrderHistory returns the customer's order summary. A missing count is zero.
func (c *Client) GetOrderHistory(ctx context.Context, token string) (OrderHistory, error) {
	var wire wireHistory
	if err := c.do(ctx, "get_order_history", http.MethodGet, "/orders/history", nil, token, nil, &wire); err != nil {
		return OrderHistory{}, err
	}
	var history OrderHistory
	if wire.CompletedOrderCount != nil && *wire.CompletedOrderCount > 0 {
		history.CompletedOrderCount = *wire.CompletedOrderCount
	}
	if wire.IsMember != nil {
		history.IsMember = *wire.IsMember
	}
	return history, nil
}

// PlaceOrder submits an order. idempotencyKey is forwarded so that retried
// submissions are recognised by the bookstore API.
func (c *Client) PlaceOrder(ctx context.Context, token, idempotencyKey string, order OrderRequest) (OrderConfirmation, error) {
	var wire wireConfirmation
	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set("Idempotency-Key", idempotencyKey)
	}
	if err := c.doWithHeaders(ctx, "place_order", http.MethodPost, "/orders", nil, token, headers, order.toWire(), &wire); err != nil {
		return OrderConfirmation{}, err
	}
	return OrderConfirmation{OrderID: wire.ID, Status: wire.Status, Total: ToCents(wire.Total)}, nil
}

// Ping checks that the bookstore API answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/health", nil, "", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, token string, body, dst any) error {
	return c.doWithHeaders(ctx, op, method, path, query, token, nil, body, dst)
}

func (c *Client) doWithHeaders(ctx context.Context, op, method, path string, query url.Values, token string, headers http.Header, body, dst any) error {
	target := c.base.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("upstream: encode %s: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("upstream: build %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.count(ctx, op, "error")
		if errors.Is(err, resilience.ErrOpenCircuit) {
			return err
		}
		return fmt.Errorf("upstream: %s: %w", op, err)
	}
	defer resp.Body.Close()
	c.count(ctx, op, strconv.Itoa(resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("unexpected upstream status")
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(snippet)}
	}
	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("upstream: decode %s: %w", op, err)
	}
	return nil
}

func (c *Client) count(ctx context.Context, op, outcome string) {
	c.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}
