// Package mux binds the service's handlers to routes and applies the
// middleware stack.
package mux

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mountgate/internal/application/sdk/mid"
	"github.com/ahrav/mountgate/pkg/common/logger"
)

// Options represent optional parameters.
type Options struct {
	corsOrigin []string
}

// WithCORS provides configuration options for CORS.
func WithCORS(origins []string) func(opts *Options) {
	return func(opts *Options) {
		opts.corsOrigin = origins
	}
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log        *logger.Logger
	Tracer     trace.Tracer
	APIMetrics mid.APIMetrics

	// Ready is closed once functional routes may be served.
	Ready <-chan struct{}
}

// Routes holds the handlers the mux serves.
type Routes struct {
	// Readiness answers the startup probe. It never passes through the gate
	// or the middleware stack.
	Readiness http.Handler
	Root      http.Handler
	Calculate http.Handler
	OpenAPI   http.Handler
	// Metrics is optional and only set when a pull exporter is active.
	Metrics http.Handler
}

// New returns the service's root handler.
func New(cfg Config, routes Routes, options ...func(opts *Options)) http.Handler {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	chain := mid.GetMiddlewareChain(cfg.Log, cfg.Tracer, cfg.APIMetrics)
	if len(opts.corsOrigin) > 0 {
		chain = append([]mid.HTTPMiddleware{cors(opts.corsOrigin)}, chain...)
	}
	gated := append(chain, mid.Gate(cfg.Ready))

	mux := http.NewServeMux()

	// Probe endpoints are registered directly on the mux WITHOUT middleware.
	mux.Handle("GET /ready", routes.Readiness)
	if routes.Metrics != nil {
		mux.Handle("GET /metrics", routes.Metrics)
	}

	if len(opts.corsOrigin) > 0 {
		mux.Handle("OPTIONS /", cors(opts.corsOrigin)(http.NotFoundHandler()))
	}

	mux.Handle("GET /openapi.yaml", mid.Wrap(routes.OpenAPI, chain...))
	mux.Handle("GET /{$}", mid.Wrap(routes.Root, gated...))
	mux.Handle("POST /api/calculator", mid.Wrap(routes.Calculate, gated...))

	return mux
}

func cors(origins []string) mid.HTTPMiddleware {
	allow := func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, host := range origins {
			if host == "*" || host == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allow(w, r)
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
