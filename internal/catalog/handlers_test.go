package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookstore-storefront/internal/cache"
	"github.com/noah-isme/bookstore-storefront/internal/catalog"
	"github.com/noah-isme/bookstore-storefront/internal/resilience"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

type stubSource struct {
	lists   int
	gets    int
	lastQ   upstream.BookQuery
	listErr error
}

func (s *stubSource) ListBooks(_ context.Context, q upstream.BookQuery) (upstream.BookPage, error) {
	s.lists++
	s.lastQ = q
	if s.listErr != nil {
		return upstream.BookPage{}, s.listErr
	}
	return upstream.BookPage{
		Items: []upstream.Book{{ID: "b1", Title: "Dune", Price: 1299}},
		Total: 41,
	}, nil
}

func (s *stubSource) GetBook(_ context.Context, id string) (upstream.Book, error) {
	s.gets++
	if id != "b1" {
		return upstream.Book{}, upstream.ErrNotFound
	}
	return upstream.Book{ID: "b1", Title: "Dune", Price: 1299}, nil
}

func newHandler(t *testing.T, src *stubSource) http.Handler {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &catalog.Handler{Svc: &catalog.Service{
		Source:       src,
		Cache:        cache.NewJSON(client, time.Minute),
		DefaultLimit: 20,
		MaxLimit:     50,
	}}
	r := chi.NewRouter()
	r.Get("/books", h.Books)
	r.Get("/books/{id}", h.Book)
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestBooksListCachedAndClamped(t *testing.T) {
	src := &stubSource{}
	h := newHandler(t, src)

	rr := get(h, "/books?page=2&limit=500&q=dune")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "41", rr.Header().Get("X-Total-Count"))
	require.Equal(t, upstream.BookQuery{Page: 2, Limit: 50, Query: "dune"}, src.lastQ)
	require.Contains(t, rr.Body.String(), `"price":1299`)
	require.Contains(t, rr.Body.String(), `"limit":50`)

	rr = get(h, "/books?page=2&limit=500&q=dune")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, src.lists)
}

func TestBookDetail(t *testing.T) {
	src := &stubSource{}
	h := newHandler(t, src)

	require.Equal(t, http.StatusOK, get(h, "/books/b1").Code)
	require.Equal(t, http.StatusOK, get(h, "/books/b1").Code)
	require.Equal(t, 1, src.gets)

	require.Equal(t, http.StatusNotFound, get(h, "/books/zzz").Code)
}

func TestUpstreamFailures(t *testing.T) {
	src := &stubSource{listErr: resilience.ErrOpenCircuit}
	h := newHandler(t, src)
	require.Equal(t, http.StatusServiceUnavailable, get(h, "/books").Code)

	src.listErr = errors.New("boom")
	require.Equal(t, http.StatusBadGateway, get(h, "/books").Code)
}

func TestGetBookMatchesUpstreamNotFound(t *testing.T) {
	svc := &catalog.Service{Source: &stubSource{}}
	_, err := svc.GetBook(context.Background(), "zzz")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.ErrorIs(t, err, upstream.ErrNotFound)
}
