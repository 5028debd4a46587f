package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.trai.ch/dval/internal/core/ports"
)

var _ ports.Metrics = (*OTelMetrics)(nil)

// OTelMetrics records cache and evaluation counters on an OpenTelemetry meter.
type OTelMetrics struct {
	lookups     metric.Int64Counter
	evaluations metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewOTelMetrics creates the dval instruments on meter.
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	lookups, err := meter.Int64Counter(
		"dval.cache.lookups",
		metric.WithDescription("Result cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	evaluations, err := meter.Int64Counter(
		"dval.utility.evaluations",
		metric.WithDescription("Utility evaluations, cached results excluded"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"dval.utility.failures",
		metric.WithDescription("Failed utility evaluations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"dval.utility.duration_ms",
		metric.WithDescription("Utility evaluation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		lookups:     lookups,
		evaluations: evaluations,
		failures:    failures,
		duration:    duration,
	}, nil
}

// CacheLookup records one lookup outcome.
func (m *OTelMetrics) CacheLookup(ctx context.Context, outcome string) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Evaluation records one utility evaluation.
func (m *OTelMetrics) Evaluation(ctx context.Context, elapsed time.Duration, err error) {
	m.evaluations.Add(ctx, 1)
	if err != nil {
		m.failures.Add(ctx, 1)
	}
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000)
}
