package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestInitTracing_DisabledWithoutEndpoint(t *testing.T) {
	tp, err := InitTracing(context.Background(), domain.TracingSettings{}, "dev")
	require.NoError(t, err)

	assert.False(t, tp.Enabled())
	assert.NotNil(t, tp.Tracer())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestInitTracing_WithEndpoint(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	// The exporter connects lazily, so no collector is needed here.
	tp, err := InitTracing(context.Background(), domain.TracingSettings{
		OTLPEndpoint: "127.0.0.1:4317",
		ServiceName:  "rag-test",
	}, "1.2.3")
	require.NoError(t, err)
	assert.True(t, tp.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tp.Shutdown(ctx)
}

func TestNewTracerProvider_RecordsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	res, err := newResource("rag-test", "1.2.3")
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := NewTracerProvider(res, sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := otel.Tracer("test").Start(context.Background(), "query")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "query", ended[0].Name())

	attrs := ended[0].Resource().Attributes()
	assert.Contains(t, attrs, semconv.ServiceName("rag-test"))
	assert.Contains(t, attrs, semconv.ServiceVersion("1.2.3"))
}

func TestNewResource_DefaultServiceName(t *testing.T) {
	res, err := newResource("", "dev")
	require.NoError(t, err)
	assert.Contains(t, res.Attributes(), semconv.ServiceName("sercha-rag"))
}
