package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bookstore-storefront/internal/auth"
	"github.com/noah-isme/bookstore-storefront/internal/cart"
	"github.com/noah-isme/bookstore-storefront/internal/catalog"
	"github.com/noah-isme/bookstore-storefront/internal/checkout"
	"github.com/noah-isme/bookstore-storefront/internal/common"
	"github.com/noah-isme/bookstore-storefront/internal/health"
	"github.com/noah-isme/bookstore-storefront/internal/loyalty"
	"github.com/noah-isme/bookstore-storefront/internal/obs"
	"github.com/noah-isme/bookstore-storefront/internal/ratelimit"
	"github.com/noah-isme/bookstore-storefront/internal/security"
)

// routes holds everything the HTTP surface is assembled from.
type routes struct {
	Logger        zerolog.Logger
	Metrics       *obs.HTTPMetrics
	Gatherer      prometheus.Gatherer
	Tracing       bool
	Origins       []string
	Headers       security.Headers
	BodyLimit     security.BodyLimit
	APILimit      ratelimit.Handler
	CheckoutLimit ratelimit.Handler
	Idem          common.Idem
	Auth          auth.Middleware
	Health        health.Handler
	Catalog       *catalog.Handler
	Cart          *cart.Handler
	Loyalty       *loyalty.Handler
	Checkout      *checkout.Handler
	Pprof         http.Handler
}

func (rt routes) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rt.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rt.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: rt.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rt.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(rt.Origins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Total-Count", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(rt.Headers.Middleware)
	r.Use(rt.BodyLimit.Middleware)

	r.Handle("/metrics", obs.Handler(rt.Gatherer))
	if rt.Pprof != nil {
		r.Mount("/debug/pprof", rt.Pprof)
	}
	r.Get("/health/live", rt.Health.Live)
	r.Get("/health/ready", rt.Health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rt.APILimit.Middleware)
		v.Get("/books", rt.Catalog.Books)
		v.Get("/books/{id}", rt.Catalog.Book)

		v.Group(func(authR chi.Router) {
			authR.Use(rt.Auth.RequireAuth)
			authR.Get("/loyalty", rt.Loyalty.Get)

			authR.Route("/cart", func(c chi.Router) {
				c.Get("/", rt.Cart.Get)
				c.Get("/breakdown", rt.Cart.Breakdown)
				c.Delete("/", rt.Cart.Clear)
				c.Post("/refresh", rt.Cart.Refresh)
				c.Group(func(g chi.Router) {
					g.Use(rt.Idem.Middleware)
					g.Post("/items", rt.Cart.AddItem)
				})
				c.Patch("/items/{itemId}", rt.Cart.UpdateItem)
				c.Delete("/items/{itemId}", rt.Cart.RemoveItem)
			})

			authR.With(rt.CheckoutLimit.Middleware, rt.Idem.Middleware).Post("/checkout", rt.Checkout.Checkout)
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
