package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTracing(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func TestGraphQLTracingMiddleware_RecordsOperation(t *testing.T) {
	recorder := setupTracing(t)

	var inner trace.SpanContext
	handler := GraphQLRequestMiddleware()(GraphQLTracingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
	})))
	handler.ServeHTTP(httptest.NewRecorder(), postJSON(`{"query":"query Kids { children { id } }"}`))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "graphql.execute", span.Name())
	assert.Equal(t, span.SpanContext().SpanID(), inner.SpanID())

	attrs := attribute.NewSet(span.Attributes()...)
	name, _ := attrs.Value("graphql.operation.name")
	assert.Equal(t, "Kids", name.AsString())
	depth, _ := attrs.Value("graphql.operation.depth")
	assert.Equal(t, int64(2), depth.AsInt64())
}

func TestGraphQLTracingMiddleware_SkipsEmptyRequests(t *testing.T) {
	recorder := setupTracing(t)

	handler := GraphQLRequestMiddleware()(GraphQLTracingMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))

	assert.Empty(t, recorder.Ended())
}
