package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/mountgate/internal/application/calculator"
	"github.com/ahrav/mountgate/internal/application/readiness"
	"github.com/ahrav/mountgate/internal/application/sdk/mid"
	"github.com/ahrav/mountgate/internal/application/sdk/mux"
	"github.com/ahrav/mountgate/internal/domain/settings"
	httpServer "github.com/ahrav/mountgate/internal/infra/adapters/http"
	"github.com/ahrav/mountgate/internal/infra/metrics"
	"github.com/ahrav/mountgate/pkg/common/logger"
)

type harness struct {
	handler http.Handler
	marker  string
	store   *settings.Store
	ready   chan struct{}
}

func newHarness(t *testing.T, calcOpts ...calculator.Option) *harness {
	t.Helper()

	dir := t.TempDir()
	log := logger.Noop()
	tracer := tracenoop.NewTracerProvider().Tracer("test")

	reg, err := metrics.NewRegistry(noop.NewMeterProvider())
	require.NoError(t, err)

	calc, err := calculator.NewService(tracer, calcOpts...)
	require.NoError(t, err)

	h := &harness{
		marker: filepath.Join(dir, ".env"),
		store:  settings.NewStore(),
		ready:  make(chan struct{}),
	}

	h.handler, err = httpServer.NewHTTPServer(
		mux.Config{Log: log, Tracer: tracer, APIMetrics: reg.API, Ready: h.ready},
		httpServer.Services{
			Probe:      readiness.NewProbe(h.marker, log, readiness.WithMetrics(reg.Readiness)),
			Store:      h.store,
			Calculator: calc,
			Version:    "1.2.3",
		},
	)
	require.NoError(t, err)

	return h
}

func (h *harness) open(t *testing.T, s settings.Settings) {
	t.Helper()
	require.NoError(t, h.store.Publish(s))
	close(h.ready)
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestReady_FollowsMarker(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]any{
		"error":   "not_ready",
		"message": "Waiting for storage mount to stabilize.",
	}, decode(t, w))

	require.NoError(t, os.WriteFile(h.marker, []byte("A=1\n"), 0o644))

	w = h.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, readiness.MessageFirstReady, decode(t, w)["message"])

	require.NoError(t, os.Remove(h.marker))

	w = h.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, readiness.MessageReady, decode(t, w)["message"])
}

func TestReady_NotGated(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.marker, nil, 0o644))

	// The gate is still closed but the probe must answer.
	w := h.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(mid.HeaderRequestID), "probe bypasses middleware")
}

func TestGate_RejectsUntilReady(t *testing.T) {
	h := newHarness(t)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/", ""},
		{http.MethodPost, "/api/calculator", `{"num1":1,"num2":2}`},
	} {
		w := h.do(tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, tc.path)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Equal(t, "starting", decode(t, w)["error"])
	}

	h.open(t, settings.Settings{APIKey: "sk-test-abcd"})

	w := h.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoot(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		message string
	}{
		{name: "key present", apiKey: "sk-test-1234", message: "Server is running. See /openapi.yaml for API schema."},
		{name: "key missing", message: "Server is running, BUT OPENAI_API_KEY not found!"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.open(t, settings.Settings{APIKey: tc.apiKey, CollectionName: "c"})

			w := h.do(http.MethodGet, "/", "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, map[string]any{"status": "ok", "message": tc.message}, decode(t, w))
		})
	}
}

func TestRoot_OnlyExactPath(t *testing.T) {
	h := newHarness(t)
	h.open(t, settings.Settings{})

	w := h.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCalculator(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		strict     bool
		wantStatus int
		wantResult float64
		wantMsg    string
		wantError  string
	}{
		{
			name:       "add",
			body:       `{"num1":5.5,"num2":10.2,"operation":"add"}`,
			wantStatus: http.StatusOK,
			wantResult: 15.7,
			wantMsg:    "Successfully calculated the sum of 5.5 and 10.2.",
		},
		{
			name:       "unsupported falls back",
			body:       `{"num1":10,"num2":3,"operation":"multiply"}`,
			wantStatus: http.StatusOK,
			wantResult: 13,
			wantMsg:    "Operation 'multiply' not supported yet. Defaulting to addition.",
		},
		{
			name:       "unsupported rejected when strict",
			body:       `{"num1":10,"num2":3,"operation":"multiply"}`,
			strict:     true,
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_operation",
		},
		{
			name:       "missing operand",
			body:       `{"num2":3}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
		{
			name:       "malformed json",
			body:       `{"num1":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
		{
			name:       "wrong type",
			body:       `{"num1":"five","num2":3}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, calculator.WithStrictOperations(tc.strict))
			h.open(t, settings.Settings{})

			w := h.do(http.MethodPost, "/api/calculator", tc.body)
			require.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			body := decode(t, w)
			if tc.wantError != "" {
				assert.Equal(t, tc.wantError, body["error"])
				assert.NotEmpty(t, body["message"])
				return
			}
			assert.InDelta(t, tc.wantResult, body["result"], 1e-9)
			assert.Equal(t, tc.wantMsg, body["message"])
		})
	}
}

func TestCalculator_ValidationDetails(t *testing.T) {
	h := newHarness(t)
	h.open(t, settings.Settings{})

	w := h.do(http.MethodPost, "/api/calculator", `{"num2":3}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Equal(t, map[string]any{"num1": "num1 is a required field"}, body["details"])
}

func TestCalculator_MethodNotAllowed(t *testing.T) {
	h := newHarness(t)
	h.open(t, settings.Settings{})

	w := h.do(http.MethodGet, "/api/calculator", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRequestID(t *testing.T) {
	h := newHarness(t)
	h.open(t, settings.Settings{})

	w := h.do(http.MethodGet, "/", "")
	assert.Len(t, w.Header().Get(mid.HeaderRequestID), 36)

	const id = "0b6f8a4e-5f0c-4c55-9d7b-6e1f6c1f0a11"
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(mid.HeaderRequestID, id)
	w = httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	assert.Equal(t, id, w.Header().Get(mid.HeaderRequestID))
}

func TestOpenAPI(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/openapi.yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))

	var doc struct {
		Info  struct{ Version string }  `yaml:"info"`
		Paths map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&doc))
	assert.Equal(t, "1.2.3", doc.Info.Version)
	assert.Contains(t, doc.Paths, "/ready")
	assert.Contains(t, doc.Paths, "/")
	assert.Contains(t, doc.Paths["/api/calculator"], "post")
}
