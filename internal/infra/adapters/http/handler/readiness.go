package httphandler

import (
	"errors"
	"net/http"

	"github.com/ahrav/mountgate/internal/application/readiness"
	"github.com/ahrav/mountgate/internal/application/sdk/mid"
)

// NotReadyMessage is returned while the mount marker is absent.
const NotReadyMessage = "Waiting for storage mount to stabilize."

// ReadinessHandler answers the orchestrator's startup probe.
type ReadinessHandler struct{ probe *readiness.Probe }

// NewReadinessHandler creates a handler backed by probe.
func NewReadinessHandler(probe *readiness.Probe) *ReadinessHandler {
	return &ReadinessHandler{probe: probe}
}

// ServeHTTP performs a single probe check and never blocks.
func (h *ReadinessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.probe.Check(r.Context())
	switch {
	case errors.Is(err, readiness.ErrNotReady):
		mid.WriteError(w, http.StatusServiceUnavailable, "not_ready", NotReadyMessage, nil)
	case err != nil:
		mid.WriteError(w, http.StatusServiceUnavailable, "not_ready", err.Error(), nil)
	default:
		mid.WriteJSON(w, http.StatusOK, res)
	}
}
