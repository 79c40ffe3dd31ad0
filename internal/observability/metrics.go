package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GraphQLMetrics holds the instruments recorded per GraphQL request.
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	queryDepth      metric.Int64Histogram
	fieldCount      metric.Int64Histogram
}

// InitGraphQLMetrics creates the request instruments on the global meter
// provider.
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter(MeterName)
	m := &GraphQLMetrics{}
	var err error

	if m.requestDuration, err = meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.requestCounter, err = meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if m.errorCounter, err = meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL requests answered with errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of GraphQL requests in flight"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}
	if m.queryDepth, err = meter.Int64Histogram(
		"graphql.query.depth",
		metric.WithDescription("Selection depth of GraphQL operations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create query depth histogram: %w", err)
	}
	if m.fieldCount, err = meter.Int64Histogram(
		"graphql.query.fields",
		metric.WithDescription("Number of fields selected by GraphQL operations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create field count histogram: %w", err)
	}
	return m, nil
}

// RecordRequest records one finished request.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation_type", operationType),
		))
	}
}

// RecordShape records the depth and field count of a parsed operation.
func (m *GraphQLMetrics) RecordShape(ctx context.Context, depth, fields int, operationType string) {
	attrs := metric.WithAttributes(attribute.String("operation_type", operationType))
	m.queryDepth.Record(ctx, int64(depth), attrs)
	m.fieldCount.Record(ctx, int64(fields), attrs)
}

// IncrementActiveRequests marks a request as started.
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests marks a request as finished.
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}
