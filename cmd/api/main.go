package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bookstore-storefront/internal/app"
	"github.com/noah-isme/bookstore-storefront/internal/auth"
	"github.com/noah-isme/bookstore-storefront/internal/cache"
	"github.com/noah-isme/bookstore-storefront/internal/cart"
	"github.com/noah-isme/bookstore-storefront/internal/catalog"
	"github.com/noah-isme/bookstore-storefront/internal/checkout"
	"github.com/noah-isme/bookstore-storefront/internal/common"
	"github.com/noah-isme/bookstore-storefront/internal/config"
	"github.com/noah-isme/bookstore-storefront/internal/health"
	"github.com/noah-isme/bookstore-storefront/internal/lock"
	"github.com/noah-isme/bookstore-storefront/internal/loyalty"
	"github.com/noah-isme/bookstore-storefront/internal/obs"
	"github.com/noah-isme/bookstore-storefront/internal/ratelimit"
	"github.com/noah-isme/bookstore-storefront/internal/resilience"
	"github.com/noah-isme/bookstore-storefront/internal/security"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("version", version).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingCfg := obs.TracingConfig{
		ServiceName:    "bookstore-storefront",
		ServiceVersion: version,
		Endpoint:       cfg.TracingEndpoint,
		Exporter:       cfg.TracingExporter,
		SamplingRatio:  cfg.TracingSampling,
		Environment:    cfg.AppEnv,
	}
	tracingEnabled := tracingCfg.Enabled()
	shutdownTracer, err := obs.InitTracer(context.Background(), tracingCfg)
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		tracingEnabled = false
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	deps, err := app.Build(startCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	handler, err := buildRoutes(cfg, deps, logger, tracingEnabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise routes")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Dur("grace", cfg.ShutdownGracePeriod).Msg("shutdown started")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func buildRoutes(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger, tracing bool) (http.Handler, error) {
	rdb := deps.Redis

	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("bookstore_api").
		WithWindow(cfg.BreakerWindow).
		WithLogger(logger)
	books, err := upstream.New(cfg.UpstreamBaseURL, upstream.Options{
		Timeout:     cfg.UpstreamTimeout,
		MaxAttempts: cfg.UpstreamMaxAttempts,
		RetryBase:   cfg.UpstreamRetryBase,
		RetryJitter: cfg.UpstreamRetryJitter,
		Breaker:     breaker,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: cfg.JWTClockSkew,
	})
	if err != nil {
		return nil, err
	}

	catalogSvc := &catalog.Service{
		Source:       books,
		Cache:        cache.NewJSON(rdb, cfg.CatalogCacheTTL),
		DefaultLimit: cfg.CatalogPageLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	}
	loyaltySvc := &loyalty.Service{
		History: books,
		Cache:   cache.NewJSON(rdb, cfg.LoyaltyCacheTTL),
		Logger:  logger.With().Str("component", "loyalty").Logger(),
	}
	cartSvc := &cart.Service{
		Store:    cart.RedisStore{R: rdb, TTL: cfg.CartTTL},
		Source:   books,
		Books:    catalogSvc,
		Loyalty:  loyaltySvc,
		Locker:   lock.Locker{R: rdb, RetryBackoff: 25 * time.Millisecond, MaxWait: cfg.CartLockTTL},
		Policy:   cfg.Pricing,
		Currency: cfg.CurrencyCode,
		LockTTL:  cfg.CartLockTTL,
		Logger:   logger.With().Str("component", "cart").Logger(),
	}
	checkoutSvc := &checkout.Service{
		Cart:     cartSvc,
		Loyalty:  loyaltySvc,
		Orders:   books,
		Events:   deps.Events,
		Currency: cfg.CurrencyCode,
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}

	limiterStore, err := ratelimit.NewRedisStore(rdb, "limiter:checkout")
	if err != nil {
		return nil, err
	}
	checkoutLimit, err := ratelimit.NewFixedWindow(limiterStore, cfg.CheckoutRateLimit)
	if err != nil {
		return nil, err
	}
	onLimitErr := func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") }

	rt := routes{
		Logger:    logger,
		Metrics:   obs.NewHTTPMetrics(cfg.MetricsNamespace, cfg.MetricsBuckets, nil),
		Gatherer:  prometheus.DefaultGatherer,
		Tracing:   tracing,
		Origins:   cfg.CORSAllowedOrigins,
		Headers:   security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTSEnabled},
		BodyLimit: security.BodyLimit{Max: cfg.BodyLimitBytes},
		APILimit: ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: rdb, Prefix: "ratelimit:"},
			Config:  ratelimit.Config{Key: ratelimit.ByCustomerOrIP("api"), Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
			OnError: onLimitErr,
		},
		CheckoutLimit: ratelimit.Handler{
			Limiter: checkoutLimit,
			Config:  ratelimit.Config{Key: ratelimit.ByCustomerOrIP("checkout"), Max: checkoutLimit.Limit()},
			OnError: onLimitErr,
		},
		Idem: common.Idem{R: rdb, TTL: cfg.IdempotencyTTL},
		Auth: auth.Middleware{Verifier: verifier},
		Health: health.Handler{
			Checker:         health.Probes{Redis: rdb, Upstream: books},
			RedisTimeout:    cfg.ReadinessProbeTimeout,
			UpstreamTimeout: cfg.ReadinessProbeTimeout,
		},
		Catalog:  &catalog.Handler{Svc: catalogSvc},
		Cart:     &cart.Handler{Svc: cartSvc},
		Loyalty:  &loyalty.Handler{Svc: loyaltySvc},
		Checkout: &checkout.Handler{Svc: checkoutSvc},
	}
	if cfg.PprofEnabled {
		rt.Pprof = protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass)
	}
	return rt.handler(), nil
}
