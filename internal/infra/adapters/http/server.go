// Package http assembles the mountgate HTTP surface.
package http

import (
	"fmt"
	"net/http"

	"github.com/ahrav/mountgate/internal/application/calculator"
	"github.com/ahrav/mountgate/internal/application/readiness"
	"github.com/ahrav/mountgate/internal/application/sdk/mux"
	"github.com/ahrav/mountgate/internal/domain/settings"
	handler "github.com/ahrav/mountgate/internal/infra/adapters/http/handler"
)

// Services holds the application services the handlers delegate to.
type Services struct {
	Probe      *readiness.Probe
	Store      *settings.Store
	Calculator *calculator.Service

	// Version is published in the API description.
	Version string
	// Metrics serves the pull exporter, if any.
	Metrics http.Handler
}

// NewHTTPServer builds the handlers for svc and routes them through the
// middleware stack described by cfg.
func NewHTTPServer(cfg mux.Config, svc Services, options ...func(opts *mux.Options)) (http.Handler, error) {
	openAPI, err := handler.NewOpenAPIHandler(svc.Version)
	if err != nil {
		return nil, fmt.Errorf("creating openapi handler: %w", err)
	}

	routes := mux.Routes{
		Readiness: handler.NewReadinessHandler(svc.Probe),
		Root:      handler.NewRootHandler(svc.Store, cfg.Log),
		Calculate: handler.NewCalculatorHandler(svc.Calculator),
		OpenAPI:   openAPI,
		Metrics:   svc.Metrics,
	}

	return mux.New(cfg, routes, options...), nil
}
