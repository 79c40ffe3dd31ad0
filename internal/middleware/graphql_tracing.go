package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"entityql/internal/logging"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a graphql.execute span
// and tags the request logger with its trace and span IDs. It reads the
// RequestInfo stored by GraphQLRequestMiddleware.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := RequestInfoFromContext(r.Context())
			if !ok || info.DocumentBytes == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := otel.Tracer("entityql/graphql").Start(r.Context(), "graphql.execute")
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				))
			}
			if span.IsRecording() {
				span.SetAttributes(graphQLSpanAttributes(info)...)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func graphQLSpanAttributes(info *RequestInfo) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("graphql.operation.type", info.OperationType),
		attribute.Int("graphql.document.size_bytes", info.DocumentBytes),
		attribute.Int("graphql.operation.field_count", info.FieldCount),
		attribute.Int("graphql.operation.depth", info.SelectionDepth),
		attribute.Int("graphql.operation.variable_count", info.VariableCount),
	}
	if info.OperationName != "" {
		attrs = append(attrs, attribute.String("graphql.operation.name", info.OperationName))
	}
	if info.Err != nil {
		attrs = append(attrs, attribute.String("graphql.request.error", info.Err.Error()))
	}
	return attrs
}
