// Package common provides shared utilities for the system.
package common

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arl/statsviz"
)

// DebugServer serves runtime visualisation and a liveness endpoint on a
// port that is never exposed to functional traffic.
type DebugServer struct {
	server *http.Server
}

// NewDebugServer creates a debug server on addr. Call ListenAndServe to
// start it and Server().Shutdown to stop it.
func NewDebugServer(addr string) (*DebugServer, error) {
	mux := http.NewServeMux()
	if err := statsviz.Register(mux); err != nil {
		return nil, fmt.Errorf("registering statsviz: %w", err)
	}
	mux.HandleFunc("GET /v1/health", healthHandler)

	return &DebugServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks until the server is shut down. A clean shutdown
// returns nil.
func (d *DebugServer) ListenAndServe() error {
	if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the server's routes.
func (d *DebugServer) Handler() http.Handler { return d.server.Handler }

// Server returns the underlying http.Server instance.
// This allows the caller to properly shut down the server when needed.
func (d *DebugServer) Server() *http.Server { return d.server }

// healthHandler responds to liveness probe requests.
// Always returns 200 OK as long as the server is running.
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
