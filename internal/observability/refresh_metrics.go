package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RefreshMetrics records schema snapshot rebuilds.
type RefreshMetrics struct {
	refreshCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
}

// InitRefreshMetrics creates the refresh instruments on the global meter
// provider.
func InitRefreshMetrics() (*RefreshMetrics, error) {
	meter := otel.Meter(MeterName + "/refresh")

	refreshCounter, err := meter.Int64Counter(
		"entityql.schema.refresh.total",
		metric.WithDescription("Schema refresh attempts by trigger and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema refresh counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"entityql.schema.refresh.errors.total",
		metric.WithDescription("Failed schema refresh attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema refresh error counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"entityql.schema.refresh.duration",
		metric.WithDescription("Duration of schema refresh attempts in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema refresh duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"entityql.schema.refresh.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful schema refresh"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema refresh last success gauge: %w", err)
	}

	metrics := &RefreshMetrics{
		refreshCounter: refreshCounter,
		errorCounter:   errorCounter,
		durationHist:   durationHist,
	}

	_, err = meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			if value := metrics.lastSuccessUnix.Load(); value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
			}
			return nil
		},
		lastSuccessGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema refresh gauge callback: %w", err)
	}

	return metrics, nil
}

// RecordRefresh records one refresh attempt. trigger is startup, poll,
// poll_no_change or manual.
func (m *RefreshMetrics) RecordRefresh(ctx context.Context, duration time.Duration, success bool, trigger, fingerprintMode string) {
	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
		attribute.String("fingerprint_mode", fingerprintMode),
	}

	m.refreshCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !success {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
		return
	}
	m.lastSuccessUnix.Store(time.Now().Unix())
}

// LastSuccess returns the time of the last successful refresh, or the zero
// time before the first one.
func (m *RefreshMetrics) LastSuccess() time.Time {
	value := m.lastSuccessUnix.Load()
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0)
}
