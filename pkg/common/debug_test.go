package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugServer_Routes(t *testing.T) {
	d, err := NewDebugServer("127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", d.Server().Addr)

	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/statsviz/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
