package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("stackfleet.daemon"))
	require.NoError(t, err)
	return m, reader
}

func TestMetrics_RecordIterationSuccess(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordIteration(context.Background(), Report{Selected: 3, Provisioned: 3}, 1500*time.Millisecond, nil)

	got := collect(t, reader)

	sum := got["stackfleet.watch.iterations"].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	assert.Contains(t, sum.DataPoints[0].Attributes.ToSlice(), attribute.String("status", "success"))

	hist := got["stackfleet.watch.iteration.duration"].Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)

	gauge := got["stackfleet.watch.clients"].Data.(metricdata.Gauge[int64])
	assert.Len(t, gauge.DataPoints, 2)

	last := got["stackfleet.watch.last_success"].Data.(metricdata.Gauge[int64])
	require.Len(t, last.DataPoints, 1)
	assert.Greater(t, last.DataPoints[0].Value, int64(0))
}

func TestMetrics_RecordIterationFailureSkipsGauges(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordIteration(context.Background(), Report{}, time.Second, errors.New("boom"))

	got := collect(t, reader)

	sum := got["stackfleet.watch.iterations"].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Contains(t, sum.DataPoints[0].Attributes.ToSlice(), attribute.String("status", "error"))

	_, ok := got["stackfleet.watch.last_success"]
	assert.False(t, ok)
}
