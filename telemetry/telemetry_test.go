package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTELHook_Run(t *testing.T) {
	tests := []struct {
		name        string
		setupCtx    func() context.Context
		expectTrace bool
	}{
		{
			name:        "no context",
			setupCtx:    func() context.Context { return nil },
			expectTrace: false,
		},
		{
			name:        "context without span",
			setupCtx:    context.Background,
			expectTrace: false,
		},
		{
			name:        "context with valid span",
			setupCtx:    createContextWithSpan,
			expectTrace: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			event := logger.Info().Ctx(tt.setupCtx())
			OTELHook{}.Run(event, zerolog.InfoLevel, "test message")
			event.Msg("test")

			output := buf.String()
			if tt.expectTrace {
				assert.Contains(t, output, "trace_id")
				assert.Contains(t, output, "span_id")
			} else {
				assert.NotContains(t, output, "trace_id")
				assert.NotContains(t, output, "span_id")
			}
		})
	}
}

// createContextWithSpan creates a context with tracing span
func createContextWithSpan() context.Context {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	ctx, _ := provider.Tracer("test").Start(context.Background(), "test-span")
	return ctx
}

func TestOTELHook_ErrorLevel(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	ctx, span := provider.Tracer("test").Start(context.Background(), "test-span")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	event := logger.Error().Ctx(ctx)
	OTELHook{}.Run(event, zerolog.ErrorLevel, "error message")
	event.Msg("test error")

	span.End()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "error message", spans[0].Status.Description)
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LoggerOptions{
		Service: "test-service",
		Level:   "debug",
		Console: &buf,
		JSON:    true,
	})
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	logger.Debug().Msg("test message")

	output := buf.String()
	assert.Contains(t, output, "test-service")
	assert.Contains(t, output, "test message")
}

func TestNewLogger_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provision.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o600))

	var console bytes.Buffer
	logger, closer, err := NewLogger(LoggerOptions{
		Service: "stackfleet",
		File:    path,
		Console: &console,
	})
	require.NoError(t, err)

	logger.Info().Str("client", "Acme Co").Msg("provisioned")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "previous run\n"))
	assert.Contains(t, content, "provisioned")
	assert.Contains(t, content, "Acme Co")
	assert.Contains(t, console.String(), "provisioned")
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := NewLogger(LoggerOptions{Level: "WARNING", Console: &buf, JSON: true})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, _, err := NewLogger(LoggerOptions{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"Warning", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"CRITICAL", zerolog.FatalLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}

	logger.Component("reconciler").Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"reconciler"`)
}

func TestLogger_LogSpanStart(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}

	logger.LogSpanStart(context.Background(), "test-span",
		attribute.String("test.key", "test.value"),
		attribute.Int("test.count", 42),
	)

	output := buf.String()
	assert.Contains(t, output, "span started")
	assert.Contains(t, output, "test-span")
	assert.Contains(t, output, "test.value")
	assert.Contains(t, output, "42")
}

func TestLogger_LogSpanEnd(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		expectError bool
	}{
		{name: "successful span", err: nil, expectError: false},
		{name: "failed span", err: assert.AnError, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := &Logger{Logger: zerolog.New(&buf)}

			logger.LogSpanEnd(context.Background(), "test-span", tt.err)

			output := buf.String()
			assert.Contains(t, output, "test-span")
			if tt.expectError {
				assert.Contains(t, output, "span failed")
				assert.Contains(t, output, `level":"error`)
			} else {
				assert.Contains(t, output, "span completed")
				assert.Contains(t, output, `level":"debug`)
			}
		})
	}
}

func TestAddAttributeToEvent(t *testing.T) {
	tests := []struct {
		name     string
		attr     attribute.KeyValue
		expected string
	}{
		{"string", attribute.String("k", "v"), `"k":"v"`},
		{"int64", attribute.Int64("k", 7), `"k":7`},
		{"float64", attribute.Float64("k", 1.5), `"k":1.5`},
		{"bool", attribute.Bool("k", true), `"k":true`},
		{"slice", attribute.StringSlice("k", []string{"a", "b"}), `"k":"[`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			addAttributeToEvent(logger.Info(), tt.attr).Msg("")
			assert.Contains(t, buf.String(), tt.expected)
		})
	}
}

func TestLogger_LogWrite(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}

	logger.LogWrite(context.Background(), "stack", "Acme Co", "create", "42")
	logger.LogWriteError(context.Background(), "token", "fortna-acme-co-token", "create", assert.AnError)

	output := buf.String()
	assert.Contains(t, output, `"family":"stack"`)
	assert.Contains(t, output, `"action":"create"`)
	assert.Contains(t, output, `"id":"42"`)
	assert.Contains(t, output, "remote write failed")
}

func TestRecordEvents(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	_, span := provider.Tracer("test").Start(context.Background(), "client")

	RecordWriteEvent(span, "datasource", "fortna-acme-co", "create", "fortna-acme-co")
	RecordStepEvent(span, "Acme Co", "DATASOURCE_UPSERT", "failed", "boom")
	RecordWriteEvent(nil, "stack", "x", "create", "1")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 2)
	assert.Equal(t, "stackfleet.remote.write", spans[0].Events[0].Name)
	assert.Equal(t, "stackfleet.pipeline.step", spans[0].Events[1].Name)
	assert.Contains(t, spans[0].Events[1].Attributes, attribute.String("error", "boom"))
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordAction(ctx, "stack", "create")
	m.RecordAction(ctx, "stack", "create")
	m.RecordReconcile(ctx, "stack", 10*time.Millisecond, nil)
	m.RecordStep(ctx, "STACK_UPSERT", time.Second, nil)
	m.RecordClient(ctx, assert.AnError)
	m.RecordRun(ctx, time.Minute, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]metricdata.Metrics{}
	for _, metric := range rm.ScopeMetrics[0].Metrics {
		names[metric.Name] = metric
	}
	assert.Contains(t, names, "stackfleet.reconcile.actions")
	assert.Contains(t, names, "stackfleet.reconcile.duration")
	assert.Contains(t, names, "stackfleet.pipeline.step.duration")
	assert.Contains(t, names, "stackfleet.clients.provisioned")
	assert.Contains(t, names, "stackfleet.run.duration")

	actions, ok := names["stackfleet.reconcile.actions"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, actions.DataPoints, 1)
	assert.Equal(t, int64(2), actions.DataPoints[0].Value)
}

func TestNewNopMetrics(t *testing.T) {
	m := NewNopMetrics()
	require.NotNil(t, m)
	assert.NotPanics(t, func() {
		m.RecordAction(context.Background(), "stack", "update")
		m.RecordRun(context.Background(), time.Second, nil)
	})
}

func TestNewProvider_MetricsOnly(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, Config{ServiceName: "stackfleet-test", ServiceVersion: "test"})
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
	require.NotNil(t, p.Registry())

	m, err := NewMetrics(p.Meter())
	require.NoError(t, err)
	m.RecordAction(ctx, "token", "delete")

	families, err := p.Registry().Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
		assert.NotContains(t, f.GetName(), ".", "names are underscore escaped")
	}
	assert.Contains(t, names, "stackfleet_reconcile_actions_total")
}
