package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/noah-isme/bookstore-storefront/internal/config"
	"github.com/noah-isme/bookstore-storefront/internal/events"
)

// Dependencies enumerates infrastructure shared by the api and worker processes.
type Dependencies struct {
	Redis      *redis.Client
	TaskClient *asynq.Client
	Kafka      *kafka.Writer
	Events     *events.Bus
}

// NewRedis connects to Redis with tracing and, optionally, metrics instrumentation.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TaskRedisOpt derives the asynq connection from the Redis URL.
func TaskRedisOpt(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("parse task queue redis url: %w", err)
	}
	return opt, nil
}

// Build wires the shared dependencies for the api process.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	rdb, err := NewRedis(ctx, cfg.RedisURL, true, logger)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{Redis: rdb}
	notifiers := []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}}

	if cfg.TaskQueueEnabled {
		opt, err := TaskRedisOpt(cfg.RedisURL)
		if err != nil {
			_ = deps.Close()
			return nil, err
		}
		deps.TaskClient = asynq.NewClient(opt)
		notifiers = append(notifiers, events.TaskNotifier{Client: deps.TaskClient, MaxRetry: cfg.PushMaxRetry})
	}
	if len(cfg.KafkaBrokers) > 0 {
		deps.Kafka = events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		notifiers = append(notifiers, events.KafkaNotifier{Writer: deps.Kafka})
	}
	deps.Events = &events.Bus{Notifiers: notifiers}
	return deps, nil
}

// Close releases every held connection.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	var joined error
	if d.Kafka != nil {
		joined = errors.Join(joined, d.Kafka.Close())
	}
	if d.TaskClient != nil {
		joined = errors.Join(joined, d.TaskClient.Close())
	}
	if d.Redis != nil {
		joined = errors.Join(joined, d.Redis.Close())
	}
	return joined
}
