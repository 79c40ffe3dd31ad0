package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics counts bearer-token authentication outcomes.
type AuthMetrics struct {
	attempts  metric.Int64Counter
	failures  metric.Int64Counter
	successes metric.Int64Counter
}

// InitAuthMetrics creates the auth instruments on the global meter provider.
func InitAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter(MeterName + "/auth")

	attempts, err := meter.Int64Counter(
		"security.auth.attempts.total",
		metric.WithDescription("Total number of authentication attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth attempts counter: %w", err)
	}
	failures, err := meter.Int64Counter(
		"security.auth.failures.total",
		metric.WithDescription("Total number of authentication failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth failures counter: %w", err)
	}
	successes, err := meter.Int64Counter(
		"security.auth.successes.total",
		metric.WithDescription("Total number of successful authentications"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth successes counter: %w", err)
	}
	return &AuthMetrics{attempts: attempts, failures: failures, successes: successes}, nil
}

// RecordAttempt counts a request that reached the auth middleware. A nil
// receiver records nothing.
func (m *AuthMetrics) RecordAttempt(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("auth_method", method)))
}

// RecordFailure counts a rejected request.
func (m *AuthMetrics) RecordFailure(ctx context.Context, method, reason string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth_method", method),
		attribute.String("reason", reason),
	))
}

// RecordSuccess counts an authenticated request.
func (m *AuthMetrics) RecordSuccess(ctx context.Context, method, issuer string) {
	if m == nil {
		return
	}
	m.successes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth_method", method),
		attribute.String("issuer", issuer),
	))
}
