package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/mountgate/internal/application/readiness"
)

var _ readiness.Metrics = (*readinessMetrics)(nil)

type readinessMetrics struct {
	probeTotal metric.Int64Counter
	mountReady metric.Int64UpDownCounter
}

func newReadinessMetrics(mp metric.MeterProvider) (*readinessMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(readinessMetrics)
	var err error

	if m.probeTotal, err = meter.Int64Counter(
		"readiness_probe_total",
		metric.WithDescription("Total number of readiness probe checks by outcome"),
	); err != nil {
		return nil, err
	}

	if m.mountReady, err = meter.Int64UpDownCounter(
		"mount_ready",
		metric.WithDescription("1 once the storage mount marker has been observed"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *readinessMetrics) IncProbe(ctx context.Context, ready bool) {
	m.probeTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("ready", ready),
	))
}

func (m *readinessMetrics) SetMountReady(ctx context.Context) {
	m.mountReady.Add(ctx, 1)
}
