package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func useTestProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestStartSpan(t *testing.T) {
	exp := useTestProvider(t)

	ctx, span := StartSpan(context.Background(), "ime.key", attribute.String("state", "idle"))
	assert.NotEmpty(t, TraceID(ctx))
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "ime.key", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("state", "idle"))
}

func TestSpanKinds(t *testing.T) {
	exp := useTestProvider(t)

	_, client := StartClientSpan(context.Background(), "engine.append_text")
	client.End()
	_, server := StartServerSpan(context.Background(), "engine.append_text")
	server.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
	assert.Equal(t, trace.SpanKindServer, spans[1].SpanKind)
}

func TestEndRecordsError(t *testing.T) {
	exp := useTestProvider(t)

	_, span := StartSpan(context.Background(), "window.show")
	End(span, errors.New("pipe closed"))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "pipe closed", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1)
}

func TestTraceID_EmptyWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestLogger(t *testing.T) {
	useTestProvider(t)

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	Logger(context.Background(), base).Info("plain")
	assert.NotContains(t, buf.String(), "trace_id")

	ctx, span := StartSpan(context.Background(), "ime.key")
	defer span.End()
	buf.Reset()
	Logger(ctx, base).Info("traced")
	assert.Contains(t, buf.String(), TraceID(ctx))
}

func TestMetricsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
}

func TestInitProvider(t *testing.T) {
	origTP, origMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})

	exp := tracetest.NewInMemoryExporter()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceName:    "kanaime-test",
		ServiceVersion: "1.2.3",
		SampleRatio:    1,
		TraceExporter:  exp,
	})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "op")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	attrs := spans[0].Resource.Attributes()
	assert.Contains(t, attrs, attribute.String("service.name", "kanaime-test"))
	assert.Contains(t, attrs, attribute.String("service.version", "1.2.3"))
	assert.Contains(t, attrs, attribute.String("telemetry.sdk.language", "go"))
}
