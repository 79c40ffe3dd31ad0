package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"entityql/internal/observability"
)

func TestGraphQLMetricsMiddleware_CountsByOperationType(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"children":[]}}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"query Kids { children { id } }","operationName":"Kids"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rm := collectMetrics(t, reader)
	if got := sumInt64Value(rm, "graphql.requests.total", "query", boolPtr(false)); got != 1 {
		t.Fatalf("graphql.requests.total query=false = %d, want 1", got)
	}
}

func TestGraphQLMetricsMiddleware_HTTP200WithGraphQLErrors(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":[{"message":"query failed for field children"}]}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ children { id } }"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rm := collectMetrics(t, reader)
	if got := sumInt64Value(rm, "graphql.requests.total", "query", boolPtr(true)); got != 1 {
		t.Fatalf("graphql.requests.total query=true = %d, want 1", got)
	}
	if got := sumInt64Value(rm, "graphql.errors.total", "query", nil); got != 1 {
		t.Fatalf("graphql.errors.total query = %d, want 1", got)
	}
}

func TestGraphQLMetricsMiddleware_UnparseableBodyIsUnknown(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rm := collectMetrics(t, reader)
	if got := sumInt64Value(rm, "graphql.requests.total", "unknown", boolPtr(true)); got != 1 {
		t.Fatalf("graphql.requests.total unknown=true = %d, want 1", got)
	}
}

func TestGraphQLMetricsMiddleware_SkipsGraphiQLPage(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))

	rm := collectMetrics(t, reader)
	if got := sumInt64Value(rm, "graphql.requests.total", "unknown", nil); got != 0 {
		t.Fatalf("graphql.requests.total = %d, want 0", got)
	}
}

func setupGraphQLMetricsMiddleware(t *testing.T, next http.Handler) (http.Handler, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	oldProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetMeterProvider(oldProvider)
	})

	metrics, err := observability.InitGraphQLMetrics()
	if err != nil {
		t.Fatalf("failed to initialize GraphQL metrics: %v", err)
	}
	return GraphQLRequestMiddleware()(GraphQLMetricsMiddleware(metrics)(next)), reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func sumInt64Value(rm metricdata.ResourceMetrics, metricName, operationType string, hasErrors *bool) int64 {
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != metricName {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				if v, ok := point.Attributes.Value("operation_type"); !ok || v.AsString() != operationType {
					continue
				}
				if hasErrors != nil {
					if v, ok := point.Attributes.Value(attribute.Key("has_errors")); !ok || v.AsBool() != *hasErrors {
						continue
					}
				}
				total += point.Value
			}
		}
	}
	return total
}

func boolPtr(v bool) *bool {
	return &v
}
