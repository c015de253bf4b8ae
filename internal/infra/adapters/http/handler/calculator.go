package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ahrav/mountgate/internal/application/calculator"
	"github.com/ahrav/mountgate/internal/application/sdk/mid"
)

const maxCalculatorBody = 1 << 16

// CalculatorHandler exposes the calculator tool.
type CalculatorHandler struct{ svc *calculator.Service }

// NewCalculatorHandler creates a handler backed by svc.
func NewCalculatorHandler(svc *calculator.Service) *CalculatorHandler {
	return &CalculatorHandler{svc: svc}
}

// ServeHTTP decodes the request, delegates to the service and maps its
// errors to 4xx/5xx responses.
func (h *CalculatorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in calculator.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCalculatorBody))
	if err := dec.Decode(&in); err != nil {
		mid.RecordError(ctx, fmt.Errorf("decoding calculator request: %w", err))
		mid.WriteError(w, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object", map[string]any{
			"error": err.Error(),
		})
		return
	}

	out, err := h.svc.Calculate(ctx, in)
	if err != nil {
		mid.RecordError(ctx, err)

		var verr *calculator.ValidationError
		switch {
		case errors.As(err, &verr):
			details := make(map[string]any, len(verr.Fields))
			for field, msg := range verr.Fields {
				details[field] = msg
			}
			mid.WriteError(w, http.StatusBadRequest, "invalid_request", "Request validation failed", details)
		case errors.Is(err, calculator.ErrUnsupportedOperation):
			mid.WriteError(w, http.StatusBadRequest, "unsupported_operation", "Only the 'add' operation is supported", map[string]any{
				"operation": in.Operation,
			})
		default:
			mid.WriteError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred", nil)
		}
		return
	}

	mid.WriteJSON(w, http.StatusOK, out)
}
