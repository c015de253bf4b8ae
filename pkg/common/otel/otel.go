// Package otel provides otel support.
package otel

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mountgate/pkg/common/logger"
)

// Config defines the information needed to init tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// ExporterEndpoint selects OTLP gRPC export. When empty, spans stay in
	// process and metrics are exposed for Prometheus to scrape.
	ExporterEndpoint   string
	ExcludedRoutes     map[string]struct{}
	Probability        float64
	ResourceAttributes map[string]string
	InsecureExporter   bool
}

// Telemetry holds the providers created by InitTelemetry.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// MetricsHandler serves the Prometheus exposition. It is nil when
	// metrics are pushed over OTLP.
	MetricsHandler http.Handler

	shutdown []func(context.Context) error
	log      *logger.Logger
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) {
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			t.log.Error(ctx, "shutting down telemetry provider", "error", err)
		}
	}
}

// Exporter constructors, replaced in tests.
var (
	newTraceExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (sdktrace.SpanExporter, error) {
		return otlptracegrpc.New(ctx, opts...)
	}
	newMetricExporter = func(ctx context.Context, opts ...otlpmetricgrpc.Option) (sdkmetric.Exporter, error) {
		return otlpmetricgrpc.New(ctx, opts...)
	}
)

// InitTelemetry configures open telemetry to be used with the service.
func InitTelemetry(log *logger.Logger, cfg Config) (*Telemetry, error) {
	// Create shared resource attributes
	attrs := make([]attribute.KeyValue, 0, len(cfg.ResourceAttributes)+2)
	attrs = append(attrs, semconv.ServiceNameKey.String(cfg.ServiceName))
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	for k, v := range cfg.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		attrs...,
	)

	tel := &Telemetry{log: log}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(newEndpointExcluder(cfg.ExcludedRoutes, cfg.Probability)),
		sdktrace.WithResource(res),
	}
	var metricReader sdkmetric.Reader

	if cfg.ExporterEndpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Initialize trace exporter.
		tOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.ExporterEndpoint)}
		if cfg.InsecureExporter {
			tOpts = append(tOpts, otlptracegrpc.WithInsecure())
		}
		traceExporter, err := newTraceExporter(ctx, tOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithMaxQueueSize(2048),
		))

		// Initialize metrics exporter.
		mOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.ExporterEndpoint)}
		if cfg.InsecureExporter {
			mOpts = append(mOpts, otlpmetricgrpc.WithInsecure())
		}
		metricExporter, err := newMetricExporter(ctx, mOpts...)
		if err != nil {
			if sErr := traceExporter.Shutdown(ctx); sErr != nil {
				log.Error(ctx, "shutting down trace exporter", "error", sErr)
			}
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		metricReader = sdkmetric.NewPeriodicReader(metricExporter)
	} else {
		reg := promclient.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("creating prometheus exporter: %w", err)
		}
		metricReader = exporter
		tel.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		})
	}

	// Configure trace provider.
	tp := sdktrace.NewTracerProvider(traceOpts...)

	// Configure metric provider.
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(metricReader),
		sdkmetric.WithResource(res),
	)

	// Set global providers.
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tel.TracerProvider = tp
	tel.MeterProvider = mp
	tel.shutdown = []func(context.Context) error{tp.Shutdown, mp.Shutdown}

	return tel, nil
}
