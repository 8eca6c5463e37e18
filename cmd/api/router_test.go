package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookstore-storefront/internal/app"
	"github.com/noah-isme/bookstore-storefront/internal/config"
	"github.com/noah-isme/bookstore-storefront/internal/events"
)

const testSecret = "router-secret"

type fakeBookstore struct {
	orders  int
	lastKey string
}

func (f *fakeBookstore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/health":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/api/books":
		_, _ = w.Write([]byte(`{"data":[{"id":"b1","title":"Dune","basePrice":"10.00"}],"meta":{"page":1,"limit":20,"total":1}}`))
	case r.URL.Path == "/api/cart":
		_, _ = w.Write([]byte(`{"items":[{"itemId":"i1","book":{"id":"b1","title":"Dune","basePrice":"10.00"},"quantity":5}]}`))
	case r.URL.Path == "/api/orders/history":
		_, _ = w.Write([]byte(`{"completedOrderCount":10,"isMember":true}`))
	case r.URL.Path == "/api/orders" && r.Method == http.MethodPost:
		f.orders++
		f.lastKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"o-1","status":"pending","total":"50.89"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeBookstore) {
	t.Helper()
	mr := miniredis.RunT(t)
	bookstore := &fakeBookstore{}
	upstreamSrv := httptest.NewServer(bookstore)
	t.Cleanup(upstreamSrv.Close)

	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":           "redis://" + mr.Addr() + "/0",
		"UPSTREAM_BASE_URL":   upstreamSrv.URL + "/api",
		"JWT_SECRET":          testSecret,
		"JWT_ISSUER":          "bookstore",
		"JWT_AUDIENCE":        "storefront",
		"CHECKOUT_RATE_LIMIT": "100-M",
	})
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	deps := &app.Dependencies{Redis: rdb, Events: &events.Bus{}}

	handler, err := buildRoutes(cfg, deps, zerolog.Nop(), false)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, bookstore
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		Issuer("bookstore").
		Audience([]string{"storefront"}).
		IssuedAt(now).
		Expiration(now.Add(time.Minute)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)
	return "Bearer " + string(signed)
}

func doRequest(t *testing.T, method, url, auth, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/health/live", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/health/ready", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["redis"])

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	require.NoError(t, err)
	metricsResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestCartRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/api/v1/cart", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBooksArePublic(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/v1/books", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1", resp.Header.Get("X-Total-Count"))
	require.Len(t, body["data"], 1)
}

func TestCartAndCheckoutFlow(t *testing.T) {
	srv, bookstore := newTestServer(t)
	auth := bearer(t, "cust-1")

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/v1/cart", auth, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	breakdown := data["breakdown"].(map[string]any)
	require.EqualValues(t, 5000, breakdown["subtotal"])
	require.EqualValues(t, 750, breakdown["discountAmount"])
	require.EqualValues(t, 5089, breakdown["total"])

	checkoutBody := `{"shippingAddress":{"name":"Ada","line1":"1 Main St","city":"Springfield","postalCode":"12345","country":"US"}}`
	resp, body = doRequest(t, http.MethodPost, srv.URL+"/api/v1/checkout", auth, checkoutBody, map[string]string{"Idempotency-Key": "order-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := body["data"].(map[string]any)
	require.Equal(t, "o-1", result["orderId"])
	require.EqualValues(t, 5089, result["total"])
	require.Equal(t, 1, bookstore.orders)
	require.Equal(t, "order-1", bookstore.lastKey)

	resp, body = doRequest(t, http.MethodPost, srv.URL+"/api/v1/checkout", auth, checkoutBody, map[string]string{"Idempotency-Key": "order-1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "IDEMPOTENT_REPLAY", body["error"].(map[string]any)["code"])
	require.Equal(t, 1, bookstore.orders)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/checkout", auth, checkoutBody, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestProtectPprof(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := protectPprof(inner, "ops", "pw")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("ops", "pw")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	protectPprof(inner, "", "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
