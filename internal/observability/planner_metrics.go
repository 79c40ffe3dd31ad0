package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PlannerMetrics counts planning decisions. It satisfies planner.Recorder.
type PlannerMetrics struct {
	plans    metric.Int64Counter
	includes metric.Int64Histogram
}

// InitPlannerMetrics creates the planner instruments on the global meter
// provider.
func InitPlannerMetrics() (*PlannerMetrics, error) {
	meter := otel.Meter(MeterName)

	plans, err := meter.Int64Counter(
		"entityql.plans.total",
		metric.WithDescription("Planned root queries by entity type, projection outcome and fallback reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan counter: %w", err)
	}
	includes, err := meter.Int64Histogram(
		"entityql.plan.includes",
		metric.WithDescription("Navigation paths included by fallback plans"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create include histogram: %w", err)
	}
	return &PlannerMetrics{plans: plans, includes: includes}, nil
}

// RecordPlan records one plan. reason is empty for projected plans.
func (m *PlannerMetrics) RecordPlan(ctx context.Context, entityType string, projected bool, reason string, includes int) {
	if reason == "" {
		reason = "none"
	}
	m.plans.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", entityType),
		attribute.Bool("projected", projected),
		attribute.String("fallback_reason", reason),
	))
	if !projected {
		m.includes.Record(ctx, int64(includes), metric.WithAttributes(
			attribute.String("entity_type", entityType),
		))
	}
}
