package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"entityql/internal/diagnostics"
)

func startResolverSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("entityql/resolver")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishResolverSpan(span trace.Span, err error, rows int) {
	if span == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case diagnostics.IsCanceled(err):
		outcome = "canceled"
	default:
		outcome = "error"
		if _, ok := err.(*diagnostics.NotFoundError); ok {
			outcome = "not_found"
		}
	}
	span.SetAttributes(
		attribute.String("graphql.resolver.outcome", outcome),
		attribute.Int("graphql.resolver.rows", rows),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
