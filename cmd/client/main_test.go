package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCalc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, map[string]any{"num1": 10.0, "num2": 3.0, "operation": "multiply"}, in)
		_, _ = w.Write([]byte(`{"result":13,"message":"Operation 'multiply' not supported yet. Defaulting to addition."}`))
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, "--base-url", srv.URL, "calc", "--num1", "10", "--num2", "3", "--op", "multiply")
	require.NoError(t, err)
	assert.Contains(t, out, `"result": 13`)
}

func TestCalc_RequiresOperands(t *testing.T) {
	_, err := run(t, "calc", "--num1", "1")
	assert.Error(t, err)
}

func TestReady_NotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"not_ready","message":"Waiting for storage mount to stabilize."}`))
	}))
	t.Cleanup(srv.Close)

	_, err := run(t, "--base-url", srv.URL, "ready")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_ready")
}

func TestInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","message":"Server is running. See /openapi.yaml for API schema."}`))
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, "--base-url", srv.URL, "info")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)
}
