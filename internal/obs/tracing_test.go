package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracingConfigEnabled(t *testing.T) {
	require.False(t, TracingConfig{Exporter: "none"}.Enabled())
	require.False(t, TracingConfig{Exporter: " OFF "}.Enabled())
	require.True(t, TracingConfig{Exporter: "otlp"}.Enabled())
	require.True(t, TracingConfig{}.Enabled())
}

func TestTracingConfigRatio(t *testing.T) {
	require.Equal(t, 1.0, TracingConfig{}.ratio())
	require.Equal(t, 1.0, TracingConfig{SamplingRatio: 3}.ratio())
	require.Equal(t, 0.25, TracingConfig{SamplingRatio: 0.25}.ratio())
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"})
	require.Error(t, err)
}
