package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookstore-storefront/internal/obs"
)

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("storefront", []float64{100, 5, 100, 25}, reg)
	second := obs.NewHTTPMetrics("storefront", nil, reg)

	require.Same(t, first.Requests, second.Requests)
	require.Same(t, first.Latency, second.Latency)
	require.Equal(t, first.InFlight, second.InFlight)

	first.Latency.WithLabelValues("GET", "/api/v1/books").Observe(30)
	families, err := reg.Gather()
	require.NoError(t, err)
	var bounds []float64
	for _, f := range families {
		if f.GetName() != "storefront_http_request_duration_ms" {
			continue
		}
		for _, b := range f.GetMetric()[0].GetHistogram().GetBucket() {
			bounds = append(bounds, b.GetUpperBound())
		}
	}
	require.Equal(t, []float64{5, 25, 100}, bounds)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Nil(t, obs.ParseBucketsCSV(""))
	require.Equal(t, []float64{5, 12.5, 100}, obs.ParseBucketsCSV("5, 12.5,,x,-3,0 100"))
}
