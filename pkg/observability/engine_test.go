package observability

import (
	"context"
	"testing"

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

func TestEngineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewEngineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDecision(ctx, "note", "android:camera", "allow")
	m.RecordDecision(ctx, "note", "android:camera", "allow")
	m.RecordDecision(ctx, "start", "android:camera", "ignore")
	m.RecordModeChange(ctx, "android:camera", "package")
	m.RecordActive(ctx, "android:camera", 1)
	m.RecordActive(ctx, "android:camera", 1)
	m.RecordActive(ctx, "android:camera", -1)
	m.RecordEvent(ctx, "mode")

	got := collect(t, reader)

	decisions, ok := got["appops.decisions.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var allowNotes int64
	for _, dp := range decisions.DataPoints {
		call, _ := dp.Attributes.Value(attribute.Key("appops.call"))
		mode, _ := dp.Attributes.Value(attribute.Key("appops.mode"))
		if call.AsString() == "note" && mode.AsString() == "allow" {
			allowNotes = dp.Value
		}
	}
	assert.Equal(t, int64(2), allowNotes)
	assert.Len(t, decisions.DataPoints, 2)

	active, ok := got["appops.ops.active"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Equal(t, int64(1), active.DataPoints[0].Value)

	changes, ok := got["appops.mode_changes.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, changes.DataPoints, 1)
	assert.Equal(t, int64(1), changes.DataPoints[0].Value)

	assert.Contains(t, got, "appops.watch.events.total")
}

func TestEngineMetrics_NilIsNoop(t *testing.T) {
	var m *EngineMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordDecision(ctx, "check", "android:camera", "allow")
		m.RecordModeChange(ctx, "android:camera", "uid")
		m.RecordActive(ctx, "android:camera", 1)
		m.RecordEvent(ctx, "noted")
	})
}
