package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)

	assert.NoError(t, err)
	assert.Nil(t, providers)
}

// OTLP exporters connect lazily, so an unreachable endpoint still initializes
func TestInitOTel_UnreachableEndpoint(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	providers, err := InitOTel(context.Background(), OTelConfig{
		Enabled:     true,
		Endpoint:    "localhost:1",
		Insecure:    true,
		SampleRatio: 0.5,
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, Tracer())
	_ = ShutdownOTel(context.Background(), providers, logger)
}

func TestShutdownOTel(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	t.Run("nil providers", func(t *testing.T) {
		assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
	})

	t.Run("tracer only", func(t *testing.T) {
		providers := &OTelProviders{TracerProvider: sdktrace.NewTracerProvider()}
		assert.NoError(t, ShutdownOTel(context.Background(), providers, logger))
	})
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	t.Run("no span keeps logger", func(t *testing.T) {
		logger := NopLogger()
		assert.Same(t, logger, UpdateLoggerWithTraceContext(context.Background(), logger))
	})

	t.Run("recording span adds ids", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		var buf bytes.Buffer
		UpdateLoggerWithTraceContext(ctx, NewLogger(InfoLevel, &buf)).Info("traced")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	})
}
