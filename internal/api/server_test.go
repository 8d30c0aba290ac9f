package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outlethq/mcp-outlet/internal/config"
	"github.com/outlethq/mcp-outlet/internal/handler"
	"github.com/outlethq/mcp-outlet/internal/store"
)

type stubExecutor struct {
	lastInput handler.Input
	envelope  handler.Envelope
}

func (s *stubExecutor) Execute(ctx context.Context, in handler.Input, rctx handler.RuntimeContext) handler.Envelope {
	s.lastInput = in
	return s.envelope
}

type stubTraces struct {
	records []store.TraceRecord
}

func (s *stubTraces) Recent(ctx context.Context, limit int) ([]store.TraceRecord, error) {
	if limit < len(s.records) {
		return s.records[:limit], nil
	}
	return s.records, nil
}

func (s *stubTraces) Get(ctx context.Context, traceID string) (store.TraceRecord, error) {
	for _, r := range s.records {
		if r.TraceID == traceID {
			return r, nil
		}
	}
	return store.TraceRecord{}, sql.ErrNoRows
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		Listen: "127.0.0.1:0",
		Auth: config.AuthConfig{
			APIKey: "master-key",
			Tokens: []config.TokenSpec{
				{Token: "caller-token", Scopes: []string{"rpc:call"}},
				{Token: "reader-token", Scopes: []string{"traces:read"}},
			},
		},
	}
}

func newTestServer(t *testing.T, executor Executor, traces TraceReader) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(testConfig(), executor, traces).routes())
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthzUnauthenticated(t *testing.T) {
	srv := newTestServer(t, &stubExecutor{}, &stubTraces{})

	resp := doRequest(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRPCRequiresAuth(t *testing.T) {
	srv := newTestServer(t, &stubExecutor{}, &stubTraces{})

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/rpc", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, srv.URL+"/rpc", "wrong-token", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRPCRequiresScope(t *testing.T) {
	srv := newTestServer(t, &stubExecutor{}, &stubTraces{})

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/rpc", "reader-token", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRPCSuccess(t *testing.T) {
	executor := &stubExecutor{envelope: handler.Envelope{
		Success:    true,
		StatusCode: http.StatusOK,
		Data: map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]any{"ok": true},
		},
	}}
	srv := newTestServer(t, executor, &stubTraces{})

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"_meta":{"server":{"command":"uvx"}}}}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/rpc", "caller-token", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Contains(t, decoded, "result")

	require.NotNil(t, executor.lastInput.Data)
	assert.Equal(t, "tools/list", executor.lastInput.Data.Method)
}

func TestRPCAcceptsWrappedBody(t *testing.T) {
	executor := &stubExecutor{envelope: handler.Envelope{
		Success:    true,
		StatusCode: http.StatusOK,
		Data:       map[string]any{"jsonrpc": "2.0", "result": map[string]any{}},
	}}
	srv := newTestServer(t, executor, &stubTraces{})

	body := []byte(`{"data":{"jsonrpc":"2.0","id":4,"method":"ping"}}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/rpc", "caller-token", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, executor.lastInput.Data)
	assert.Equal(t, "ping", executor.lastInput.Data.Method)
}

func TestRPCFailureMapsEnvelope(t *testing.T) {
	executor := &stubExecutor{envelope: handler.Envelope{
		Success:    false,
		StatusCode: http.StatusInternalServerError,
		Error: map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32601, "message": "nope"},
		},
	}}
	srv := newTestServer(t, executor, &stubTraces{})

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"bogus"}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/rpc", "master-key", body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Contains(t, decoded, "error")
}

func TestRPCRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, &stubExecutor{}, &stubTraces{})

	resp := doRequest(t, http.MethodPost, srv.URL+"/rpc", "master-key", []byte(`{"jsonrpc":"2.0"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTraceEndpoints(t *testing.T) {
	traces := &stubTraces{records: []store.TraceRecord{
		{TraceID: "t-1", Method: "tools/list", Success: true},
		{TraceID: "t-2", Method: "ping", Success: true},
	}}
	srv := newTestServer(t, &stubExecutor{}, traces)

	resp := doRequest(t, http.MethodGet, srv.URL+"/traces", "reader-token", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Traces []store.TraceRecord `json:"traces"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	assert.Len(t, listing.Traces, 2)

	resp = doRequest(t, http.MethodGet, srv.URL+"/traces/t-2", "reader-token", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/traces/absent", "reader-token", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// rpc:call does not grant trace access.
	resp = doRequest(t, http.MethodGet, srv.URL+"/traces", "caller-token", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTraceListLimitValidation(t *testing.T) {
	srv := newTestServer(t, &stubExecutor{}, &stubTraces{})

	resp := doRequest(t, http.MethodGet, srv.URL+"/traces?limit=abc", "reader-token", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
