package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/mountgate/internal/application/startup"
)

var _ startup.Metrics = (*startupMetrics)(nil)

type startupMetrics struct {
	state         metric.Int64Gauge
	mountWait     metric.Float64Histogram
	mountAttempts metric.Int64Histogram
	selfTests     metric.Int64Counter
}

func newStartupMetrics(mp metric.MeterProvider) (*startupMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(startupMetrics)
	var err error

	if m.state, err = meter.Int64Gauge(
		"startup_state",
		metric.WithDescription("Current startup coordinator state (0=not_started .. 5=shutting_down)"),
	); err != nil {
		return nil, err
	}

	if m.mountWait, err = meter.Float64Histogram(
		"startup_mount_wait_seconds",
		metric.WithDescription("Time the startup coordinator spent waiting for the storage mount"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.mountAttempts, err = meter.Int64Histogram(
		"startup_mount_attempts",
		metric.WithDescription("Number of marker checks made by the startup coordinator"),
	); err != nil {
		return nil, err
	}

	if m.selfTests, err = meter.Int64Counter(
		"startup_self_test_total",
		metric.WithDescription("Filesystem self-test runs by target and outcome"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *startupMetrics) SetState(ctx context.Context, state startup.State) {
	m.state.Record(ctx, int64(state), metric.WithAttributes(
		attribute.String("state", state.String()),
	))
}

func (m *startupMetrics) ObserveMountWait(ctx context.Context, found bool, attempts int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("found", found))
	m.mountWait.Record(ctx, duration.Seconds(), attrs)
	m.mountAttempts.Record(ctx, int64(attempts), attrs)
}

func (m *startupMetrics) IncSelfTest(ctx context.Context, target string, ok bool) {
	m.selfTests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target),
		attribute.Bool("ok", ok),
	))
}
