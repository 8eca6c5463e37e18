package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bookstore-storefront/internal/app"
	"github.com/noah-isme/bookstore-storefront/internal/config"
	"github.com/noah-isme/bookstore-storefront/internal/events"
	"github.com/noah-isme/bookstore-storefront/internal/notify"
	"github.com/noah-isme/bookstore-storefront/internal/obs"
	"github.com/noah-isme/bookstore-storefront/internal/resilience"
)

const pushTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, false, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	pusher := &notify.Pusher{
		Endpoint: cfg.PushEndpointURL,
		Secret:   cfg.PushSecret,
		HTTP: &resilience.HTTPClient{
			Client: notify.HTTPClient(pushTimeout),
			Breaker: resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
				WithTarget("push_endpoint").
				WithWindow(cfg.BreakerWindow).
				WithLogger(logger),
			Target:      "push_endpoint",
			MaxAttempts: 1,
			Timeout:     pushTimeout,
			Logger:      logger,
		},
		Replay:    notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL: cfg.PushReplayTTL,
		Logger:    logger,
	}
	if err := pusher.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid push configuration")
	}

	opt, err := app.TaskRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("task queue connection")
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		ShutdownTimeout: cfg.ShutdownGracePeriod,
		ErrorHandler:    taskErrorLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(events.TaskPushDeliver, pusher.HandlePushTask)

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
	logger.Info().Msg("worker stopped")
}

func taskErrorLogger(logger zerolog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Warn().Err(err).
			Str("task", task.Type()).
			Int("retry", retried).
			Int("max_retry", maxRetry).
			Msg("task failed")
	})
}
