package observability

import (
	"context"
	"errors"
	"fmt"
)

// TelemetryConfig configures tracing and metrics together.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
}

// Telemetry owns the tracer and meter providers of one process.
type Telemetry struct {
	Tracer  *TracerProvider
	Metrics *MetricsProvider
}

// InitTelemetry starts the tracer, then metrics.
func InitTelemetry(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	tp, err := InitTracer(ctx, TracerConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}

	mp, err := InitMetrics(ctx, MetricsConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("initialize metrics: %w", err), tp.Shutdown(ctx))
	}

	return &Telemetry{Tracer: tp, Metrics: mp}, nil
}

// Shutdown flushes in reverse startup order: metrics, then tracer. Both are
// attempted even if the first fails.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Metrics.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
	)
}
