package app

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookstore-storefront/internal/config"
	"github.com/noah-isme/bookstore-storefront/internal/events"
)

func TestBuildWiresNotifiers(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{
		RedisURL:         "redis://" + mr.Addr() + "/0",
		TaskQueueEnabled: true,
		PushMaxRetry:     4,
		KafkaBrokers:     []string{"127.0.0.1:9092"},
		KafkaTopic:       "storefront.events",
	}
	deps, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	require.NotNil(t, deps.Redis)
	require.NotNil(t, deps.TaskClient)
	require.NotNil(t, deps.Kafka)
	require.Len(t, deps.Events.Notifiers, 3)
	_, isTask := deps.Events.Notifiers[1].(events.TaskNotifier)
	require.True(t, isTask)
}

func TestBuildMinimal(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	deps, err := Build(context.Background(), &config.Config{RedisURL: "redis://" + mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, deps.TaskClient)
	require.Nil(t, deps.Kafka)
	require.Len(t, deps.Events.Notifiers, 1)
	require.NoError(t, deps.Close())
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", false, zerolog.Nop())
	require.Error(t, err)
	_, err = TaskRedisOpt("http://nope")
	require.Error(t, err)
}
