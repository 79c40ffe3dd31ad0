package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitMeterProvider(t *testing.T) {
	mp, err := InitMeterProvider(Config{
		ServiceName:    "entityql-test",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	})
	require.NoError(t, err)
	require.NotNil(t, mp.Exporter())

	assert.NoError(t, mp.Shutdown(context.Background(), discardLogger()))
}

func TestParseOTLPProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    otlpProtocol
		wantErr bool
	}{
		{in: "", want: otlpProtocolGRPC},
		{in: "GRPC", want: otlpProtocolGRPC},
		{in: "http", want: otlpProtocolHTTP},
		{in: "http/protobuf", want: otlpProtocolHTTP},
		{in: "http/json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOTLPProtocol(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildTLSConfig(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-cert"), 0o600))

	tests := []struct {
		name    string
		cfg     OTLPExporterConfig
		wantErr string
	}{
		{name: "defaults", cfg: OTLPExporterConfig{}},
		{name: "missing CA", cfg: OTLPExporterConfig{TLSCertFile: filepath.Join(dir, "missing.pem")}, wantErr: "failed to read OTLP TLS CA file"},
		{name: "invalid CA", cfg: OTLPExporterConfig{TLSCertFile: garbage}, wantErr: "failed to parse OTLP TLS CA file"},
		{name: "cert without key", cfg: OTLPExporterConfig{TLSClientCertFile: garbage}, wantErr: "OTLP TLS client cert and key must both be set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := buildTLSConfig(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfg)
		})
	}
}

func TestNewTraceExporter_RejectsUnknownProtocol(t *testing.T) {
	_, err := newTraceExporter(context.Background(), OTLPExporterConfig{Protocol: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported OTLP protocol")
}

func TestTraceSamplerForRatio(t *testing.T) {
	sample := func(s sdktrace.Sampler, parent context.Context, id byte) sdktrace.SamplingDecision {
		return s.ShouldSample(sdktrace.SamplingParameters{
			ParentContext: parent,
			TraceID:       trace.TraceID{id},
			Name:          "planner.Plan",
		}).Decision
	}
	background := context.Background()

	assert.Equal(t, sdktrace.Drop, sample(traceSamplerForRatio(0), background, 1))
	assert.Equal(t, sdktrace.RecordAndSample, sample(traceSamplerForRatio(1), background, 2))

	// Mid-range ratios follow a remote parent's decision.
	sampled := trace.ContextWithSpanContext(background, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	unsampled := trace.ContextWithSpanContext(background, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))
	assert.Equal(t, sdktrace.RecordAndSample, sample(traceSamplerForRatio(0.5), sampled, 4))
	assert.Equal(t, sdktrace.Drop, sample(traceSamplerForRatio(0.5), unsampled, 6))
}
