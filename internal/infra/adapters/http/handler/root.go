package httphandler

import (
	"errors"
	"net/http"

	"github.com/ahrav/mountgate/internal/application/sdk/mid"
	"github.com/ahrav/mountgate/internal/domain/settings"
	"github.com/ahrav/mountgate/pkg/common/logger"
)

// Messages returned by the root endpoint.
const (
	RootMessage       = "Server is running. See /openapi.yaml for API schema."
	RootMissingAPIKey = "Server is running, BUT OPENAI_API_KEY not found!"
)

// StatusResponse is the body of the root endpoint.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

var errSettingsUnpublished = errors.New("settings not yet published")

// RootHandler reports that the service is up and whether its provider
// secret is configured.
type RootHandler struct {
	store *settings.Store
	log   *logger.Logger
}

// NewRootHandler creates a handler reading from store.
func NewRootHandler(store *settings.Store, log *logger.Logger) *RootHandler {
	return &RootHandler{store: store, log: log}
}

func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, ok := h.store.Load()
	if !ok {
		mid.RecordError(ctx, errSettingsUnpublished)
		mid.WriteError(w, http.StatusServiceUnavailable, "starting", mid.GateMessage, nil)
		return
	}

	h.log.Info(ctx, "current settings",
		"llm_provider", s.LLMProvider,
		"embedding_model", s.EmbeddingModel,
		"max_step_iterations", s.MaxStepIterations,
		"collection_name", s.CollectionName,
		"scratch_path", s.ScratchPath,
		"mount_path", s.MountPath,
	)

	if !s.HasAPIKey() {
		h.log.Critical(ctx, "OPENAI_API_KEY environment variable not found")
		mid.WriteJSON(w, http.StatusOK, StatusResponse{Status: "ok", Message: RootMissingAPIKey})
		return
	}

	h.log.Info(ctx, "OPENAI_API_KEY found", "preview", s.APIKeyPreview())
	mid.WriteJSON(w, http.StatusOK, StatusResponse{Status: "ok", Message: RootMessage})
}
