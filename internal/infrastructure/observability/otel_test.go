package observability

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
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

func TestRecordReservation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	RecordReservation(ctx, metrics, "created", "washer-1")
	RecordReservation(ctx, metrics, "created", "washer-1")
	RecordReservation(ctx, metrics, "conflict", "washer-1")
	RecordReservation(ctx, nil, "created", "washer-1")

	got := collect(t, reader)

	created, ok := got["reservation.created.count"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, created.DataPoints, 1)
	assert.Equal(t, int64(2), created.DataPoints[0].Value)

	conflict, ok := got["reservation.conflict.count"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, conflict.DataPoints, 1)
	assert.Equal(t, int64(1), conflict.DataPoints[0].Value)
}

func TestRecordDBMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	RecordDBMetric(context.Background(), metrics, "reservations.create", 12*time.Millisecond)

	got := collect(t, reader)
	hist, ok := got["db.query.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, otellog.SeverityInfo, severityFor(zerolog.InfoLevel))
	assert.Equal(t, otellog.SeverityWarn, severityFor(zerolog.WarnLevel))
	assert.Equal(t, otellog.SeverityError, severityFor(zerolog.ErrorLevel))
	assert.Equal(t, otellog.SeverityUndefined, severityFor(zerolog.NoLevel))
}
