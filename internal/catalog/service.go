package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/noah-isme/bookstore-storefront/internal/cache"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

// ErrNotFound is returned when the book does not exist.
var ErrNotFound = errors.New("book not found")

// Source is the bookstore API's catalog.
type Source interface {
	ListBooks(ctx context.Context, q upstream.BookQuery) (upstream.BookPage, error)
	GetBook(ctx context.Context, id string) (upstream.Book, error)
}

// Service proxies the catalog through a short-lived cache.
type Service struct {
	Source       Source
	Cache        *cache.JSON
	DefaultLimit int
	MaxLimit     int
}

// List returns a page of books matching the query.
func (s *Service) List(ctx context.Context, q upstream.BookQuery) (upstream.BookPage, error) {
	if s == nil || s.Source == nil {
		return upstream.BookPage{}, errors.New("catalog: source not configured")
	}
	q = s.normalize(q)
	page, err := cache.Remember(ctx, s.Cache, cache.KeyBookList(q.Page, q.Limit, q.Query), func(ctx context.Context) (upstream.BookPage, error) {
		return s.Source.ListBooks(ctx, q)
	})
	if err != nil {
		return upstream.BookPage{}, err
	}
	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.Limit == 0 {
		page.Limit = q.Limit
	}
	if page.Items == nil {
		page.Items = []upstream.Book{}
	}
	return page, nil
}

// GetBook returns one book. Unknown ids yield an error matching both
// ErrNotFound and upstream.ErrNotFound.
func (s *Service) GetBook(ctx context.Context, id string) (upstream.Book, error) {
	if s == nil || s.Source == nil {
		return upstream.Book{}, errors.New("catalog: source not configured")
	}
	id = strings.TrimSpace(id)
	book, err := cache.Remember(ctx, s.Cache, cache.KeyBook(id), func(ctx context.Context) (upstream.Book, error) {
		return s.Source.GetBook(ctx, id)
	})
	if errors.Is(err, upstream.ErrNotFound) {
		return upstream.Book{}, errors.Join(ErrNotFound, upstream.ErrNotFound)
	}
	return book, err
}

func (s *Service) normalize(q upstream.BookQuery) upstream.BookQuery {
	def := s.DefaultLimit
	if def <= 0 {
		def = 20
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = def
	}
	if s.MaxLimit > 0 && q.Limit > s.MaxLimit {
		q.Limit = s.MaxLimit
	}
	q.Query = strings.TrimSpace(q.Query)
	return q
}
