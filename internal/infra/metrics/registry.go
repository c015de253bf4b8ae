package metrics

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/mountgate/internal/application/readiness"
	"github.com/ahrav/mountgate/internal/application/sdk/mid"
	"github.com/ahrav/mountgate/internal/application/startup"
)

const namespace = "mountgate"

// Registry provides access to all metric implementations.
// It centralizes the creation and management of metrics instances.
type Registry struct {
	API       mid.APIMetrics
	Readiness readiness.Metrics
	Startup   startup.Metrics
}

// NewRegistry creates and initializes all metrics implementations.
// It uses a single meter provider to ensure consistent configuration.
func NewRegistry(mp metric.MeterProvider) (*Registry, error) {
	apiMetrics, err := newAPIMetrics(mp)
	if err != nil {
		return nil, err
	}

	readinessMetrics, err := newReadinessMetrics(mp)
	if err != nil {
		return nil, err
	}

	startupMetrics, err := newStartupMetrics(mp)
	if err != nil {
		return nil, err
	}

	return &Registry{
		API:       apiMetrics,
		Readiness: readinessMetrics,
		Startup:   startupMetrics,
	}, nil
}
